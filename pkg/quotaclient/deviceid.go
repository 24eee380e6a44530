package quotaclient

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// DeviceID returns the stable fingerprint this device sends to the quota
// service: a persisted random UUID mixed with whatever hardware signals the
// platform exposes, hashed together. The server treats it as an untrusted
// hint, so the only goal here is stability across runs, not tamper proofing.
func DeviceID(stateDir string) (string, error) {
	persisted, err := persistedID(stateDir)
	if err != nil {
		return "", err
	}

	signals := hardwareSignals()
	signals = append(signals, persisted, runtime.GOOS, runtime.GOARCH)

	sum := sha256.Sum256([]byte(strings.Join(signals, "|")))
	return hex.EncodeToString(sum[:]), nil
}

// persistedID loads the device UUID from stateDir, generating and saving a
// new one on first run.
func persistedID(stateDir string) (string, error) {
	path := filepath.Join(stateDir, "device_id")

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.New().String()
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", err
	}
	return id, nil
}

// hardwareSignals collects platform hardware identifiers on a best-effort
// basis. An empty result is fine; the persisted UUID alone keeps the device
// id stable.
func hardwareSignals() []string {
	switch runtime.GOOS {
	case "darwin":
		return macOSSignals()
	case "linux":
		return linuxSignals()
	case "windows":
		return windowsSignals()
	default:
		return nil
	}
}

func macOSSignals() []string {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return nil
	}
	var ids []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "IOPlatformUUID") {
			parts := strings.Split(line, "\"")
			if len(parts) >= 4 {
				ids = append(ids, parts[3])
			}
		}
	}
	return ids
}

func linuxSignals() []string {
	var ids []string
	if data, err := os.ReadFile("/sys/class/dmi/id/product_uuid"); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			ids = append(ids, id)
		}
	}
	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func windowsSignals() []string {
	out, err := exec.Command("wmic", "csproduct", "get", "UUID").Output()
	if err != nil {
		return nil
	}
	var ids []string
	for _, line := range bytes.Split(out, []byte("\n")) {
		str := strings.TrimSpace(string(line))
		if str != "" && !strings.EqualFold(str, "UUID") {
			ids = append(ids, str)
		}
	}
	return ids
}
