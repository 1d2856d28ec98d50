package fingerprint

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/rizztempo/rizztempo/internal/version"
)

// HostCollector reads attributes of the machine the client runs on.
type HostCollector struct {
	ApplicationID string
	// OSReleasePath defaults to /etc/os-release.
	OSReleasePath string
}

// Collect implements Collector.
func (h HostCollector) Collect(ctx context.Context) (Attributes, error) {
	if err := ctx.Err(); err != nil {
		return Attributes{}, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return Attributes{}, fmt.Errorf("hostname: %w", err)
	}
	release := readOSRelease(h.osReleasePath())
	attrs := Attributes{
		Brand:              release["ID"],
		Manufacturer:       runtime.GOOS,
		ModelName:          runtime.GOARCH,
		ModelID:            strings.TrimSpace(readFirstLine("/etc/machine-id")),
		OSName:             firstNonEmpty(release["NAME"], runtime.GOOS),
		OSVersion:          release["VERSION_ID"],
		OSBuildID:          release["BUILD_ID"],
		DeviceName:         hostname,
		ApplicationID:      firstNonEmpty(h.ApplicationID, "rizztempo"),
		NativeAppVersion:   version.Version,
		NativeBuildVersion: version.Commit,
	}
	return attrs, nil
}

func (h HostCollector) osReleasePath() string {
	if h.OSReleasePath != "" {
		return h.OSReleasePath
	}
	return "/etc/os-release"
}

func readOSRelease(path string) map[string]string {
	values := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		return values
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(val, `"'`)
	}
	return values
}

func readFirstLine(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return line
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
