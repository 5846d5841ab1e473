package textenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "UTF-8", want: "utf-8"},
		{name: "utf8", want: "utf-8"},
		{name: "Shift_JIS", want: "shift_jis"},
		{name: "MS932", want: "shift_jis"},
		{name: "eucJP", want: "euc-jp"},
		{name: "EUC-JP", want: "euc-jp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Name(enc))
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("klingon-8")
	require.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestLookup_EmptyIsDefault(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_CTYPE", "")
	t.Setenv("LANG", "ja_JP.SJIS")

	enc, err := Lookup("")
	require.NoError(t, err)
	assert.Equal(t, "shift_jis", Name(enc))
}

func TestDefault(t *testing.T) {
	t.Run("falls back to utf-8", func(t *testing.T) {
		t.Setenv("LC_ALL", "")
		t.Setenv("LC_CTYPE", "")
		t.Setenv("LANG", "")
		assert.Equal(t, unicode.UTF8, Default())
	})

	t.Run("LC_ALL wins", func(t *testing.T) {
		t.Setenv("LC_ALL", "ja_JP.eucJP@euro")
		t.Setenv("LANG", "en_US.UTF-8")
		assert.Equal(t, "euc-jp", Name(Default()))
	})

	t.Run("locale without charset", func(t *testing.T) {
		t.Setenv("LC_ALL", "C")
		t.Setenv("LANG", "ja_JP.eucJP")
		assert.Equal(t, unicode.UTF8, Default())
	})

	t.Run("empty charset", func(t *testing.T) {
		t.Setenv("LC_ALL", "en_US.")
		assert.Equal(t, unicode.UTF8, Default())
	})
}

func TestDecode_ShiftJIS(t *testing.T) {
	raw, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("こんにちは"))
	require.NoError(t, err)

	enc, err := Lookup("shift_jis")
	require.NoError(t, err)

	out, err := Decode(enc, raw)
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", string(out))
}
