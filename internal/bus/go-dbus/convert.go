package godbus

import (
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/srg/bluekit/internal/bus"
)

// fromDBus unwraps library types into the plain values the bus contract
// promises: variants unwrapped recursively, object paths as strings.
// Shapes the daemon never produces pass through untouched.
func fromDBus(v any) any {
	switch t := v.(type) {
	case dbus.Variant:
		return fromDBus(t.Value())
	case dbus.ObjectPath:
		return string(t)
	case []dbus.ObjectPath:
		out := make([]string, len(t))
		for i, p := range t {
			out[i] = string(p)
		}
		return out
	case []dbus.Variant:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromDBus(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromDBus(e)
		}
		return out
	case map[string]dbus.Variant:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromDBus(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromDBus(e)
		}
		return out
	default:
		return v
	}
}

// convertSignal turns a raw D-Bus signal into the contract shape: member
// name without its interface prefix, body as plain values.
func convertSignal(sig *dbus.Signal) bus.Signal {
	body := make([]any, len(sig.Body))
	for i, v := range sig.Body {
		body[i] = fromDBus(v)
	}
	return bus.Signal{
		Path:   string(sig.Path),
		Member: memberName(sig.Name),
		Body:   body,
	}
}

func memberName(full string) string {
	if i := strings.LastIndex(full, "."); i >= 0 {
		return full[i+1:]
	}
	return full
}
