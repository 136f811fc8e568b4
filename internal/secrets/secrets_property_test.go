package secrets

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEncryptionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	strong := New()
	weak := New(WithoutStrongCrypto())
	other := New(WithPassphrase("a different passphrase"))

	properties.Property("round-trip preserves the plaintext", prop.ForAll(
		func(plain string) bool {
			enc, err := strong.Encrypt(plain)
			if err != nil {
				return false
			}
			return strong.Decrypt(enc) == plain
		},
		gen.AnyString(),
	))

	properties.Property("obfuscation round-trip preserves the plaintext", prop.ForAll(
		func(plain string) bool {
			enc, err := weak.Encrypt(plain)
			if err != nil {
				return false
			}
			return weak.Decrypt(enc) == plain
		},
		gen.AnyString(),
	))

	properties.Property("a different passphrase never decrypts", prop.ForAll(
		func(plain string) bool {
			if plain == "" {
				return true
			}
			enc, err := strong.Encrypt(plain)
			if err != nil {
				return false
			}
			return other.Decrypt(enc) == ""
		},
		gen.AnyString(),
	))

	properties.Property("signatures verify against the signed data", prop.ForAll(
		func(data []byte) bool {
			return strong.Verify(data, strong.Sign(data))
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
