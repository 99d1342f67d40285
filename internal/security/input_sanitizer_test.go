package security

import "testing"

func TestSanitize_StripsAllMarkup(t *testing.T) {
	sanitizer := NewInputSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "cargador sustituido sin incidencias", "cargador sustituido sin incidencias"},
		{"script stripped", `antes<script>alert("x")</script>después`, "antesdespués"},
		{"tags stripped", "<b>importante</b>: revisar diferencial", "importante: revisar diferencial"},
		{"attributes stripped", `<a href="http://evil.example">enlace</a>`, "enlace"},
		{"img stripped", `foto <img src=x onerror=alert(1)> adjunta`, "foto  adjunta"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewInputSanitizer()

	input := `observación <b>con</b> marcado`
	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)
	if once != twice {
		t.Errorf("not idempotent: %q != %q", once, twice)
	}
}
