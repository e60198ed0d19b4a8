package cryptor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testCryptor(t *testing.T) *XChaCha {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	c, err := FromBase64(key)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEncryptDecryptFile(t *testing.T) {
	c := testCryptor(t)
	plain := []byte("jpeg bytes")

	sealed, err := c.Encrypt(plain, "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatal("ciphertext contains plaintext")
	}
	path := filepath.Join(t.TempDir(), "m.jpg")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.Decrypt(path, "chat-1"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("decrypted = %q", got)
	}
}

func TestDecryptWithWrongChatFails(t *testing.T) {
	c := testCryptor(t)
	sealed, err := c.Encrypt([]byte("secret"), "chat-1")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "m.jpg")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.Decrypt(path, "chat-2"); !errors.Is(err, ErrCiphertext) {
		t.Errorf("err = %v, want ErrCiphertext", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, sealed) {
		t.Error("failed decrypt modified the file")
	}
}

func TestKeyValidation(t *testing.T) {
	if _, err := New(make([]byte, 16)); !errors.Is(err, ErrShortKey) {
		t.Errorf("err = %v, want ErrShortKey", err)
	}
	if _, err := FromBase64("!!!"); err == nil {
		t.Error("invalid base64 accepted")
	}
}

func TestPlainIsIdentity(t *testing.T) {
	out, err := Plain{}.Encrypt([]byte("x"), "c")
	if err != nil || string(out) != "x" {
		t.Errorf("Plain.Encrypt = %q, %v", out, err)
	}
}
