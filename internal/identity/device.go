package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const hostTagLen = 8

// hostIDSource returns a raw machine identifier or "".
type hostIDSource func() string

// HostTag returns a short device tag derived from the machine id, or "" when
// none is available. The id is hashed so records never carry the raw value.
func HostTag() string {
	return hostTagFrom(platformSources()...)
}

func hostTagFrom(sources ...hostIDSource) string {
	for _, src := range sources {
		id := strings.ToLower(strings.TrimSpace(src()))
		if id == "" {
			continue
		}
		sum := sha256.Sum256([]byte("fieldsync:" + id))
		return hex.EncodeToString(sum[:])[:hostTagLen]
	}
	return ""
}

func platformSources() []hostIDSource {
	switch runtime.GOOS {
	case "linux":
		return []hostIDSource{
			fileSource("/etc/machine-id"),
			fileSource("/var/lib/dbus/machine-id"),
			fileSource("/sys/class/dmi/id/product_uuid"),
		}
	case "darwin":
		return []hostIDSource{ioregPlatformUUID}
	default:
		return nil
	}
}

func fileSource(path string) hostIDSource {
	return func() string {
		data, err := os.ReadFile(path)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func ioregPlatformUUID() string {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return ""
	}
	return parseIORegUUID(string(out))
}

// parseIORegUUID extracts the value of `"IOPlatformUUID" = "..."`.
func parseIORegUUID(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, `"IOPlatformUUID"`) {
			continue
		}
		_, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		return strings.Trim(strings.TrimSpace(val), `"`)
	}
	return ""
}
