package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash 哈希格式错误
var ErrInvalidHash = errors.New("invalid encoded hash format")

// PasswordConfig Argon2配置
type PasswordConfig struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultPasswordConfig 默认配置
var DefaultPasswordConfig = &PasswordConfig{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
}

// argonHash 解码后的哈希
type argonHash struct {
	params PasswordConfig
	salt   []byte
	key    []byte
}

// HashPassword 使用默认参数哈希密码，用于生成操作员配置
func HashPassword(password string) (string, error) {
	return HashPasswordWithConfig(password, DefaultPasswordConfig)
}

// HashPasswordWithConfig 使用指定配置哈希密码
//
// 格式: $argon2id$v=19$m=65536,t=1,p=4$salt$hash
func HashPasswordWithConfig(password string, config *PasswordConfig) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, config.Time, config.Memory, config.Threads, config.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, config.Memory, config.Time, config.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// decodeHash 解析编码后的哈希
func decodeHash(encoded string) (*argonHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("incompatible argon2 version %d", version)
	}

	h := &argonHash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &h.params.Threads); err != nil {
		return nil, ErrInvalidHash
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, ErrInvalidHash
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, ErrInvalidHash
	}
	h.params.KeyLen = uint32(len(h.key))
	return h, nil
}

// VerifyPassword 验证密码，恒定时间比较
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return subtle.ConstantTimeCompare(h.key, key) == 1, nil
}

// NeedsRehash 哈希参数弱于默认配置时返回 true
func NeedsRehash(encoded string) bool {
	h, err := decodeHash(encoded)
	if err != nil {
		return true
	}
	d := DefaultPasswordConfig
	return h.params.Memory < d.Memory || h.params.Time < d.Time || h.params.KeyLen < d.KeyLen
}

// GenerateSessionID 生成会话ID
func GenerateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
