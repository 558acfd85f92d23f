package at

const (
	// Terminal Control
	CR   = '\r'
	LF   = '\n'
	CRLF = "\r\n"

	// Commands
	CmdAt           = "AT"
	CmdEchoOff      = "ATE0"
	CmdAttachStatus = "AT+CGATT?"
	CmdClock        = "AT+CCLK?"
	CmdShut         = "AT+CIPSHUT"
	CmdTransparent  = "AT+CIPMODE=1"
	CmdBearerUp     = "AT+CIICR"
	CmdLocalIP      = "AT+CIFSR"

	// Parameterized commands
	FmtSetAPN   = `AT+CSTT="%s"`
	FmtStartTCP = `AT+CIPSTART="TCP","%s","%d"`

	// Response Codes
	OK          = "OK"
	ERROR       = "ERROR"
	ShutOK      = "SHUT OK"
	ConnectOK   = "CONNECT OK"
	Connect     = "CONNECT"
	ConnectFail = "CONNECT FAIL"
	Closed      = "CLOSED"

	// URCs (Unsolicited Result Codes)
	UrcSMSReady  = "SMS Ready"
	Attached     = "+CGATT: 1"
	ClockPrefix  = "+CCLK: "
)

// Kind identifies a recognized modem text line.
type Kind int

const (
	KindUnknown     Kind = iota // echo, banners, anything unrecognized
	KindOK                      // OK
	KindError                   // ERROR, +CME ERROR
	KindSMSReady                // SMS Ready
	KindAttached                // +CGATT: 1
	KindShutOK                  // SHUT OK
	KindConnect                 // CONNECT OK or CONNECT
	KindConnectFail             // CONNECT FAIL
	KindClosed                  // CLOSED
	KindIP                      // dotted quad from AT+CIFSR
	KindClock                   // +CCLK: "yy/MM/dd,hh:mm:ss±zz"
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindOK:          "ok",
	KindError:       "error",
	KindSMSReady:    "sms-ready",
	KindAttached:    "attached",
	KindShutOK:      "shut-ok",
	KindConnect:     "connect",
	KindConnectFail: "connect-fail",
	KindClosed:      "closed",
	KindIP:          "ip",
	KindClock:       "clock",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}
