package functional

import (
	"strings"

	"github.com/715d/topcallers/pkg/kb"
)

// EntryKind explains why nothing in the code base calls a top caller.
type EntryKind int

const (
	EntryUnreferenced EntryKind = iota
	EntryHTTP
	EntryScheduled
	EntryListener
	EntryMain
	EntryLifecycle
	EntryTest
)

var entryKindNames = map[EntryKind]string{
	EntryUnreferenced: "unreferenced",
	EntryHTTP:         "http-endpoint",
	EntryScheduled:    "scheduled",
	EntryListener:     "listener",
	EntryMain:         "main",
	EntryLifecycle:    "lifecycle",
	EntryTest:         "test",
}

func (k EntryKind) String() string {
	return entryKindNames[k]
}

// MarshalText renders the kind name in JSON and YAML output.
func (k EntryKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// entryAnnotations maps annotation simple names to the entry kind they imply.
var entryAnnotations = map[string]EntryKind{
	"RequestMapping": EntryHTTP,
	"GetMapping":     EntryHTTP,
	"PostMapping":    EntryHTTP,
	"PutMapping":     EntryHTTP,
	"DeleteMapping":  EntryHTTP,
	"PatchMapping":   EntryHTTP,
	"Path":           EntryHTTP,
	"GET":            EntryHTTP,
	"POST":           EntryHTTP,
	"PUT":            EntryHTTP,
	"DELETE":         EntryHTTP,

	"Scheduled": EntryScheduled,
	"Schedules": EntryScheduled,
	"XxlJob":    EntryScheduled,

	"EventListener":              EntryListener,
	"TransactionalEventListener": EntryListener,
	"KafkaListener":              EntryListener,
	"RabbitListener":             EntryListener,
	"JmsListener":                EntryListener,
	"StreamListener":             EntryListener,
	"SqsListener":                EntryListener,
	"RocketMQMessageListener":    EntryListener,

	"PostConstruct": EntryLifecycle,
	"PreDestroy":    EntryLifecycle,
	"Bean":          EntryLifecycle,

	"Test":              EntryTest,
	"ParameterizedTest": EntryTest,
	"RepeatedTest":      EntryTest,
	"BeforeEach":        EntryTest,
	"AfterEach":         EntryTest,
	"BeforeAll":         EntryTest,
	"AfterAll":          EntryTest,
	"Before":            EntryTest,
	"After":             EntryTest,
}

// lifecycleMethods are container callbacks recognised by name.
var lifecycleMethods = map[string]bool{
	"afterPropertiesSet": true,
	"destroy":            true,
	"contextInitialized": true,
	"contextDestroyed":   true,
	"init":               true,
}

// ClassifyEntry derives the entry kind of a method that has no callers.
func ClassifyEntry(m *kb.MethodSymbol) EntryKind {
	for _, a := range m.Annotations {
		a = strings.TrimPrefix(a, "@")
		if i := strings.LastIndexByte(a, '.'); i >= 0 {
			a = a[i+1:]
		}
		if kind, ok := entryAnnotations[a]; ok {
			return kind
		}
	}
	if isMain(m) {
		return EntryMain
	}
	if lifecycleMethods[m.Name] && len(m.Params) == 0 {
		return EntryLifecycle
	}
	return EntryUnreferenced
}

func isMain(m *kb.MethodSymbol) bool {
	if !m.Static || m.Name != "main" || m.ReturnType != "void" || len(m.Params) != 1 {
		return false
	}
	p := strings.ReplaceAll(m.Params[0], " ", "")
	return p == "String[]" || p == "String..." || p == "java.lang.String[]"
}
