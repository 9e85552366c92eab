package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
)

func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	// nonce is prepended to the ciphertext
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

func Decrypt(encryptedData string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return string(plaintext), nil
}

const sealedPrefix = "enc:"

// TokenSealer encrypts provider access tokens before they are persisted.
// With an empty key it stores tokens as given.
type TokenSealer struct {
	key []byte
}

func NewTokenSealer(secretKey string) *TokenSealer {
	return &TokenSealer{key: []byte(secretKey)}
}

func (s *TokenSealer) Seal(token string) (string, error) {
	if s == nil || len(s.key) == 0 || token == "" {
		return token, nil
	}
	sealed, err := Encrypt([]byte(token), s.key)
	if err != nil {
		return "", err
	}
	return sealedPrefix + sealed, nil
}

// Open reverses Seal. Values written without a key pass through.
func (s *TokenSealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil || len(s.key) == 0 {
		return "", errors.New("sealed token found but no SECRET_KEY configured")
	}
	return Decrypt(strings.TrimPrefix(stored, sealedPrefix), s.key)
}
