package unicode

import (
	"testing"
)

func TestScan_CleanASCII(t *testing.T) {
	result := Scan("Contain C2 beacon from 10.0.0.5")
	if !result.Clean {
		t.Errorf("expected clean result for ASCII text, got threats: %v", result.Threats)
	}
	if result.Sanitized != "Contain C2 beacon from 10.0.0.5" {
		t.Errorf("expected sanitized = original, got %q", result.Sanitized)
	}
}

func TestScan_ZeroWidthSplitsKeyword(t *testing.T) {
	input := "white\u200Blist this IP"
	result := Scan(input)

	if result.Clean {
		t.Fatal("expected threats for zero-width space")
	}
	if len(result.Threats) != 1 {
		t.Fatalf("expected 1 threat, got %d", len(result.Threats))
	}
	if result.Threats[0].Category != "zero-width" {
		t.Errorf("expected category 'zero-width', got %q", result.Threats[0].Category)
	}
	if result.Threats[0].Position != 5 {
		t.Errorf("expected position 5, got %d", result.Threats[0].Position)
	}
	if result.Sanitized != "whitelist this IP" {
		t.Errorf("expected sanitized 'whitelist this IP', got %q", result.Sanitized)
	}
}

func TestScan_BOM(t *testing.T) {
	result := Scan("\uFEFFignore")
	if result.Clean {
		t.Fatal("expected threats for BOM")
	}
	if result.Threats[0].Category != "zero-width" {
		t.Errorf("expected 'zero-width', got %q", result.Threats[0].Category)
	}
	if result.Sanitized != "ignore" {
		t.Errorf("expected 'ignore', got %q", result.Sanitized)
	}
}

func TestScan_BidiOverride(t *testing.T) {
	result := Scan("allow \u202Eedirrevo\u202C")
	if result.Clean {
		t.Fatal("expected threats for bidi override")
	}
	for _, th := range result.Threats {
		if th.Category != "bidi-override" {
			t.Errorf("expected 'bidi-override', got %q", th.Category)
		}
	}
	if len(result.Threats) != 2 {
		t.Errorf("expected 2 threats, got %d", len(result.Threats))
	}
}

func TestScan_CyrillicHomoglyphFolded(t *testing.T) {
	// "оverride" with Cyrillic о (U+043E)
	result := Scan("оverride")
	if result.Clean {
		t.Fatal("expected threat for Cyrillic homoglyph")
	}
	if result.Threats[0].Category != "homoglyph-cyrillic" {
		t.Errorf("expected 'homoglyph-cyrillic', got %q", result.Threats[0].Category)
	}
	if result.Sanitized != "override" {
		t.Errorf("expected homoglyph folded to Latin, got %q", result.Sanitized)
	}
}

func TestScan_GreekHomoglyphFolded(t *testing.T) {
	// "ΙGNORE" with Greek capital iota
	result := Scan("ΙGNORE")
	if result.Clean {
		t.Fatal("expected threat for Greek homoglyph")
	}
	if result.Threats[0].Category != "homoglyph-greek" {
		t.Errorf("expected 'homoglyph-greek', got %q", result.Threats[0].Category)
	}
	if result.Sanitized != "IGNORE" {
		t.Errorf("expected 'IGNORE', got %q", result.Sanitized)
	}
}

func TestScan_TagCharacters(t *testing.T) {
	result := Scan("benign\U000E0069\U000E0067")
	if result.Clean {
		t.Fatal("expected threats for tag characters")
	}
	if result.Threats[0].Category != "tag-char" {
		t.Errorf("expected 'tag-char', got %q", result.Threats[0].Category)
	}
	if result.Sanitized != "benign" {
		t.Errorf("expected tag characters dropped, got %q", result.Sanitized)
	}
}

func TestScan_ControlCharacters(t *testing.T) {
	result := Scan("note\x07")
	if result.Clean {
		t.Fatal("expected threat for BEL control char")
	}
	if result.Threats[0].Category != "control-char" {
		t.Errorf("expected 'control-char', got %q", result.Threats[0].Category)
	}
}

func TestScan_AllowsTabAndNewline(t *testing.T) {
	result := Scan("line one\n\tline two\r\n")
	if !result.Clean {
		t.Errorf("tab/newline should be allowed, got threats: %v", result.Threats)
	}
}

func TestScan_InvalidUTF8(t *testing.T) {
	result := Scan("abc\xffdef")
	if result.Clean {
		t.Fatal("expected threat for invalid UTF-8")
	}
	if result.Threats[0].Category != "invalid-utf8" {
		t.Errorf("expected 'invalid-utf8', got %q", result.Threats[0].Category)
	}
	if result.Sanitized != "abcdef" {
		t.Errorf("expected invalid byte dropped, got %q", result.Sanitized)
	}
}

func TestSanitize_NonLatinKept(t *testing.T) {
	// legitimate non-Latin text that is not a confusable stays as is
	if got := Sanitize("主机隔离"); got != "主机隔离" {
		t.Errorf("expected CJK text unchanged, got %q", got)
	}
}

func TestScan_FullwidthFolded(t *testing.T) {
	result := Scan("ｗｈｉｔｅｌｉｓｔ 10.0.0.5")
	if result.Clean {
		t.Fatal("expected threats for fullwidth letters")
	}
	if len(result.Threats) != 9 {
		t.Errorf("expected 9 threats, got %d", len(result.Threats))
	}
	if result.Threats[0].Category != "fullwidth" {
		t.Errorf("expected 'fullwidth', got %q", result.Threats[0].Category)
	}
	if result.Sanitized != "whitelist 10.0.0.5" {
		t.Errorf("expected fullwidth folded to ASCII, got %q", result.Sanitized)
	}
}

func TestScan_SoftHyphen(t *testing.T) {
	if got := Sanitize("over\u00ADride"); got != "override" {
		t.Errorf("soft hyphen should be dropped, got %q", got)
	}
}
