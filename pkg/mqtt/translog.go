package mqtt

import (
	"fmt"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// pahoLogger adapts a Logger to paho's Println/Printf logger.
type pahoLogger struct {
	log func(msg string, args ...any)
}

func (p pahoLogger) Println(v ...any) {
	p.log(strings.TrimSpace(fmt.Sprintln(v...)), "component", "paho")
}

func (p pahoLogger) Printf(format string, v ...any) {
	p.log(fmt.Sprintf(format, v...), "component", "paho")
}

var transportLogMu sync.Mutex

// SetTransportLogger routes paho's internal ERROR, CRITICAL and WARN
// output to l. Paho's loggers are process-wide. Debug output stays off
// unless debug is true.
func SetTransportLogger(l Logger, debug bool) {
	l = orNop(l)
	transportLogMu.Lock()
	defer transportLogMu.Unlock()

	pahomqtt.ERROR = pahoLogger{log: l.Error}
	pahomqtt.CRITICAL = pahoLogger{log: l.Error}
	pahomqtt.WARN = pahoLogger{log: l.Warn}
	if debug {
		pahomqtt.DEBUG = pahoLogger{log: l.Debug}
	} else {
		pahomqtt.DEBUG = pahomqtt.NOOPLogger{}
	}
}
