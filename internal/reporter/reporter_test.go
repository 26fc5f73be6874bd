package reporter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	post, err := New(PostName, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &PostReporter{}, post)
	assert.Equal(t, PostName, post.Name())

	s, err := New(SentryName, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &SentryReporter{}, s)
	assert.Equal(t, SentryName, s.Name())

	_, err = New("kafka", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownReporter)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ok", KindOK.String())
	assert.Equal(t, "not_configured", KindNotConfigured.String())
	assert.Equal(t, "too_large", KindTooLarge.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestConfigError(t *testing.T) {
	missing := &ConfigError{Kind: ConfigMissing, Key: KeyPostURL}
	assert.Equal(t, "the setting reporter.post.url is mandatory", missing.Error())

	cause := errors.New("bad port")
	invalid := &ConfigError{Kind: ConfigInvalid, Key: KeyPostURL, Err: cause}
	assert.ErrorIs(t, invalid, cause)
	assert.Contains(t, invalid.Error(), "bad port")
}
