package fingerprint

import "testing"

func TestSHA256Hasher(t *testing.T) {
	var h SHA256Hasher

	t.Run("generates correct hash", func(t *testing.T) {
		// sha256 of "q\na\nc"
		expectedHash := "eb2456c1ee4f36305069dd0f63a30e92d5443129f5e8fd9a5ec490fbc4d4d8a2"
		got, err := h.Hash([]byte("q\na\nc"))
		if err != nil {
			t.Fatalf("Hash returned an unexpected error: %v", err)
		}
		if got != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, got)
		}
	})

	t.Run("line endings do not matter", func(t *testing.T) {
		unix, _ := h.Hash([]byte("till\t直到\n"))
		dos, _ := h.Hash([]byte("till\t直到\r\n"))
		if unix != dos {
			t.Error("Expected CRLF and LF content to hash the same")
		}
	})

	t.Run("empty content is an error", func(t *testing.T) {
		if _, err := h.Hash(nil); err == nil {
			t.Error("Expected an error for empty content")
		}
	})
}
