package ime

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Detect inspects the environment the way desktop toolkits do and returns
// "fcitx", "ibus", or "none". The first of GTK_IM_MODULE, QT_IM_MODULE,
// XMODIFIERS naming a known backend wins.
func Detect() string {
	for _, v := range []string{"GTK_IM_MODULE", "QT_IM_MODULE", "XMODIFIERS"} {
		val := strings.ToLower(os.Getenv(v))
		if val == "" {
			continue
		}
		if strings.Contains(val, "fcitx") {
			return "fcitx"
		}
		if strings.Contains(val, "ibus") {
			return "ibus"
		}
	}
	return "none"
}

// New builds the transport for a backend name. "auto" detects from the
// environment; "none" (or a failed detection) yields a nil transport,
// which the correlator treats as IME-unavailable.
func New(backend, program string, timeout time.Duration, log *slog.Logger) (Transport, error) {
	if backend == "auto" || backend == "" {
		backend = Detect()
	}
	switch backend {
	case "fcitx", "fcitx5":
		return NewFcitx(program, timeout, log), nil
	case "ibus":
		return NewIBus(program, timeout, log), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("ime: unknown backend %q", backend)
	}
}
