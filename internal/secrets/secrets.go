// Package secrets encrypts sensitive setting values into
// self-describing envelopes and decodes every envelope shape ever
// shipped, so old payloads stay readable after upgrades.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"
)

// Envelope format tags. Decrypt dispatches on these; anything without
// a recognized tag is treated as raw legacy obfuscation.
const (
	// TagCurrent marks AES-GCM envelopes with the current derivation
	// cost and the tag bound as authenticated data.
	TagCurrent = "enc2:"

	// TagLegacy marks first-generation envelopes: same layout, lighter
	// derivation, no authenticated data.
	TagLegacy = "enc1:"
)

const (
	currentIterations = 150_000
	legacyIterations  = 10_000

	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	obfuscationSaltSize = 8
)

// defaultPassphrase keys envelopes when no secret is configured.
// Changing it orphans every envelope written under it.
const defaultPassphrase = "prefstore.settings.v3"

// ErrCryptoUnavailable is returned when strong crypto is disabled and
// an operation has no fallback.
var ErrCryptoUnavailable = errors.New("strong crypto unavailable")

// Service encrypts, decrypts, hashes and signs setting values. All
// methods are safe for concurrent use.
type Service struct {
	passphrase []byte
	strong     bool
	log        zerolog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPassphrase keys envelopes with an explicit secret instead of the
// application-fixed default. Empty secrets are ignored.
func WithPassphrase(secret string) Option {
	return func(s *Service) {
		if secret != "" {
			s.passphrase = []byte(secret)
		}
	}
}

// WithoutStrongCrypto models a runtime without authenticated
// encryption. Encrypt degrades to reversible obfuscation and Hash and
// Sign to a non-cryptographic rolling hash.
func WithoutStrongCrypto() Option {
	return func(s *Service) {
		s.strong = false
	}
}

// WithServiceLogger sets the logger for decode failures.
func WithServiceLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// New builds a Service with strong crypto enabled.
func New(opts ...Option) *Service {
	s := &Service{
		passphrase: []byte(defaultPassphrase),
		strong:     true,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsStrong reports whether authenticated encryption backs Encrypt,
// Hash and Sign. Callers must not treat Hash or Sign as cryptographic
// when this is false.
func (s *Service) IsStrong() bool { return s.strong }

// Encrypt seals a value into a current-format envelope. Without strong
// crypto it falls back to tagless reversible obfuscation. Empty input
// stays empty.
func (s *Service) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if !s.strong {
		return s.obfuscate(plain)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := s.aead(salt, currentIterations)
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plain), []byte(TagCurrent))

	body := make([]byte, 0, saltSize+nonceSize+len(sealed))
	body = append(body, salt...)
	body = append(body, nonce...)
	body = append(body, sealed...)
	return TagCurrent + base64.StdEncoding.EncodeToString(body), nil
}

// Decrypt opens an envelope of any shipped shape. It never fails hard:
// when every decode path for the value's shape is exhausted it returns
// the empty string, and the caller treats the value as absent.
func (s *Service) Decrypt(enc string) string {
	switch {
	case enc == "":
		return ""
	case strings.HasPrefix(enc, TagCurrent):
		plain, err := s.open(strings.TrimPrefix(enc, TagCurrent), currentIterations, []byte(TagCurrent))
		if err != nil {
			s.log.Debug().Err(err).Str("format", TagCurrent).Msg("envelope decode failed")
			return ""
		}
		return plain
	case strings.HasPrefix(enc, TagLegacy):
		plain, err := s.open(strings.TrimPrefix(enc, TagLegacy), legacyIterations, nil)
		if err != nil {
			s.log.Debug().Err(err).Str("format", TagLegacy).Msg("envelope decode failed")
			return ""
		}
		return plain
	default:
		return s.deobfuscate(enc)
	}
}

// open decodes one versioned envelope body: base64(salt ‖ nonce ‖
// ciphertext‖tag).
func (s *Service) open(body string, iterations int, aad []byte) (string, error) {
	if !s.strong {
		return "", ErrCryptoUnavailable
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if len(raw) < saltSize+nonceSize+16 {
		return "", errors.New("envelope too short")
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	sealed := raw[saltSize+nonceSize:]

	gcm, err := s.aead(salt, iterations)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return "", fmt.Errorf("open envelope: %w", err)
	}
	return string(plain), nil
}

func (s *Service) aead(salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key(s.passphrase, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// obfuscate is the weak-crypto write path: a timestamp-salted
// reversible XOR, base64-wrapped with the salt embedded and no tag.
func (s *Service) obfuscate(plain string) (string, error) {
	salt := make([]byte, obfuscationSaltSize)
	binary.BigEndian.PutUint64(salt, uint64(s.now().UnixNano()))

	data := []byte(plain)
	s.applyKeystream(data, salt)

	body := make([]byte, 0, obfuscationSaltSize+len(data))
	body = append(body, salt...)
	body = append(body, data...)
	return base64.StdEncoding.EncodeToString(body), nil
}

// deobfuscate reverses obfuscate. The XOR itself cannot fail, so
// failure means the input was not one of ours: bad base64, too short,
// or a result that is not valid text.
func (s *Service) deobfuscate(enc string) string {
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil || len(raw) < obfuscationSaltSize {
		s.log.Debug().Msg("unrecognized legacy value")
		return ""
	}
	salt, data := raw[:obfuscationSaltSize], raw[obfuscationSaltSize:]
	s.applyKeystream(data, salt)
	if !utf8.Valid(data) {
		s.log.Debug().Msg("legacy value did not decode to text")
		return ""
	}
	return string(data)
}

// applyKeystream XORs data in place with a keystream derived from the
// passphrase and salt. Applying it twice restores the input.
func (s *Service) applyKeystream(data, salt []byte) {
	var stream []byte
	var counter uint32
	for len(stream) < len(data) {
		h := sha256.New()
		h.Write(s.passphrase)
		h.Write(salt)
		var c [4]byte
		binary.BigEndian.PutUint32(c[:], counter)
		h.Write(c[:])
		stream = h.Sum(stream)
		counter++
	}
	for i := range data {
		data[i] ^= stream[i]
	}
}
