package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"jean.dupont@example.fr":       "Jean Dupont",
		"JEAN.DUPONT@example.fr":       "Jean Dupont",
		"marie-claire_durand@mail.com": "Marie Claire Durand",
		"jean.dupont+edl@example.fr":   "Jean Dupont",
		"paul42@example.fr":            "Paul",
		"élodie.roux@example.fr":       "Élodie Roux",
		"contact":                      "Contact",
		"1234@example.fr":              "",
		"@example.fr":                  "",
		"":                             "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, DisplayName(in))
		})
	}
}
