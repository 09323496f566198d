package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"devicepair/internal/domain"
)

func TestSpellNATO(t *testing.T) {
	assert.Equal(t, "Alpha. Bravo. One. Two.", SpellNATO("AB12"))
	assert.Equal(t, "X-ray. Yankee. Zulu. Nine. Zero. Charlie.", SpellNATO("xyz90c"))
	assert.Equal(t, "Echo. #.", SpellNATO("E #"))
	assert.Empty(t, SpellNATO(""))
}

func TestParseBackendAnswer(t *testing.T) {
	tests := []struct {
		answer string
		want   domain.BackendType
		ok     bool
	}{
		{"offline", domain.BackendOffline, true},
		{"no backend please", domain.BackendOffline, true},
		{"local", domain.BackendOffline, true},
		{"Selene", domain.BackendSelene, true},
		{"use mycroft", domain.BackendSelene, true},
		{"banana", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseBackendAnswer(tt.answer)
		assert.Equal(t, tt.ok, ok, tt.answer)
		assert.Equal(t, tt.want, got, tt.answer)
	}
}

func TestParseYesNo(t *testing.T) {
	assert.Equal(t, "yes", parseYesNo("Yes."))
	assert.Equal(t, "yes", parseYesNo("yeah sure"))
	assert.Equal(t, "no", parseYesNo("no thanks"))
	assert.Equal(t, "", parseYesNo("maybe"))
	assert.Equal(t, "", parseYesNo(""))
}

func TestMatchOption(t *testing.T) {
	assert.Equal(t, "offline female", matchOption("offline female", ttsOptions))
	assert.Equal(t, "online male", matchOption("the online male voice", ttsOptions))
	assert.Equal(t, "online with google", matchOption("google", sttOptions))
	assert.Equal(t, "offline with vosk", matchOption("2", sttOptions))
	assert.Equal(t, "", matchOption("female", ttsOptions), "ambiguous")
	assert.Equal(t, "", matchOption("nothing", ttsOptions))
	assert.Equal(t, "", matchOption("", ttsOptions))
}

func TestParseEngines(t *testing.T) {
	stt, ok := domain.ParseSTTEngine("online with google")
	assert.True(t, ok)
	assert.Equal(t, domain.STTGoogle, stt)
	stt, ok = domain.ParseSTTEngine("offline with vosk")
	assert.True(t, ok)
	assert.Equal(t, domain.STTVosk, stt)

	for answer, want := range map[string]domain.TTSEngine{
		"online male":    domain.TTSMimic2,
		"offline male":   domain.TTSMimic,
		"online female":  domain.TTSLarynx,
		"offline female": domain.TTSPico,
		"pico":           domain.TTSPico,
	} {
		got, ok := domain.ParseTTSEngine(answer)
		assert.True(t, ok, answer)
		assert.Equal(t, want, got, answer)
	}
	_, ok = domain.ParseTTSEngine("robot")
	assert.False(t, ok)
}
