package auth

import "golang.org/x/crypto/bcrypt"

// HashAPIKey hashes a plaintext API key with the given bcrypt cost.
func HashAPIKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareAPIKey verifies a presented key against its stored hash.
func CompareAPIKey(hashed, presented string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(presented))
}
