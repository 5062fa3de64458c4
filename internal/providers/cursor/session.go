package cursor

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register cookie store finders
	_ "github.com/mattn/go-sqlite3"

	"golang.org/x/crypto/pbkdf2"
)

// sessionCookieName is the WorkOS session cookie cursor.com sets after login.
const sessionCookieName = "WorkosCursorSessionToken"

// DiscoverSessionToken looks for a Cursor session token on this machine:
// first in the cookie stores of installed browsers, then in the Cursor
// editor's own Chromium profile.
func DiscoverSessionToken() (string, error) {
	if token := tokenFromBrowsers(); token != "" {
		return token, nil
	}

	token, err := tokenFromCursorApp()
	if err != nil {
		return "", fmt.Errorf("no %s cookie in any browser; editor profile: %w", sessionCookieName, err)
	}
	return token, nil
}

func tokenFromBrowsers() string {
	for _, domain := range []string{"cursor.com", "cursor.sh"} {
		cookies := kooky.ReadCookies(kooky.Valid, kooky.DomainContains(domain), kooky.Name(sessionCookieName))
		for _, c := range cookies {
			if token := normalizeToken(c.Value); token != "" {
				return token
			}
		}
	}
	return ""
}

// tokenFromCursorApp reads the editor's own cookie jar. Cursor is an
// Electron app, so this is a Chromium cookie DB with the usual Safe Storage
// encryption; only the macOS keychain variant is implemented.
func tokenFromCursorApp() (string, error) {
	if runtime.GOOS != "darwin" {
		return "", fmt.Errorf("editor cookie extraction only supported on macOS")
	}

	key, err := cursorSafeStorageKey()
	if err != nil {
		return "", err
	}

	cookiesPath := filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Cursor", "Cookies")
	if _, err := os.Stat(cookiesPath); os.IsNotExist(err) {
		return "", fmt.Errorf("cookie DB not found: %s", cookiesPath)
	}

	// Copy first: the editor keeps the DB locked while running.
	srcData, err := os.ReadFile(cookiesPath)
	if err != nil {
		return "", fmt.Errorf("reading cookie DB: %w", err)
	}
	tmpFile, err := os.CreateTemp("", "cursor-cookies-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)
	if err := os.WriteFile(tmpPath, srcData, 0o600); err != nil {
		return "", fmt.Errorf("writing temp cookie DB: %w", err)
	}

	db, err := sql.Open("sqlite3", tmpPath+"?mode=ro")
	if err != nil {
		return "", fmt.Errorf("opening cookie DB: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT encrypted_value FROM cookies WHERE host_key LIKE '%cursor%' AND name = ?",
		sessionCookieName,
	)
	if err != nil {
		return "", fmt.Errorf("querying cookies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var encValue []byte
		if err := rows.Scan(&encValue); err != nil {
			continue
		}
		decrypted, err := decryptCookieValue(encValue, key)
		if err != nil {
			continue
		}
		if token := normalizeToken(decrypted); token != "" {
			return token, nil
		}
	}

	return "", fmt.Errorf("%s cookie not found (is the editor logged in?)", sessionCookieName)
}

// cursorSafeStorageKey derives the Chromium cookie encryption key from the
// Safe Storage password the editor keeps in the macOS keychain.
func cursorSafeStorageKey() ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-w", "-s", "Cursor Safe Storage", "-a", "Cursor").Output()
	if err != nil {
		return nil, fmt.Errorf("keychain lookup failed (is the Cursor editor installed?): %w", err)
	}
	password := strings.TrimSpace(string(out))

	return pbkdf2.Key([]byte(password), []byte("saltysalt"), 1003, 16, sha1.New), nil
}

// decryptCookieValue decrypts a Chromium "v10" cookie value: AES-128-CBC
// with a fixed all-space IV, PKCS7 padding, and (since Chromium 128) a
// 32-byte domain-hash prefix on the plaintext.
func decryptCookieValue(encrypted, key []byte) (string, error) {
	if len(encrypted) < 3 || string(encrypted[:3]) != "v10" {
		return "", fmt.Errorf("unsupported cookie encryption format")
	}
	ciphertext := encrypted[3:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext not aligned to block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}

	iv := []byte("                ") // 16 spaces
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return "", fmt.Errorf("invalid PKCS7 padding")
	}
	plaintext = plaintext[:len(plaintext)-padLen]

	const domainHashLen = 32
	if len(plaintext) <= domainHashLen {
		return "", fmt.Errorf("decrypted value too short (len=%d)", len(plaintext))
	}
	return string(plaintext[domainHashLen:]), nil
}

// normalizeToken URL-unescapes a session cookie value. The WorkOS cookie
// encodes "user_<id>::<jwt>" with the separator percent-escaped.
func normalizeToken(value string) string {
	if value == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(value); err == nil {
		return decoded
	}
	return value
}
