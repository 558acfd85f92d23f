package modem_test

import "fmt"

// ReplyScript maps AT commands, without their CR LF, to the text the modem
// answers with.
type ReplyScript struct {
	replies map[string]string
}

func NewReplyScript() *ReplyScript {
	return &ReplyScript{replies: map[string]string{}}
}

func (b *ReplyScript) On(cmd, reply string) *ReplyScript {
	b.replies[cmd] = reply
	return b
}

func (b *ReplyScript) AT() *ReplyScript {
	return b.On("AT", "AT\r\r\nOK\r\n")
}

// EchoOff answers ATE0 and, when ready is set, follows with the SMS Ready
// line the modem prints once it finished booting.
func (b *ReplyScript) EchoOff(ready bool) *ReplyScript {
	reply := "ATE0\r\r\nOK\r\n"
	if ready {
		reply += "\r\nCall Ready\r\n\r\nSMS Ready\r\n"
	}
	return b.On("ATE0", reply)
}

func (b *ReplyScript) Attached() *ReplyScript {
	return b.On("AT+CGATT?", "\r\n+CGATT: 1\r\n\r\nOK\r\n")
}

func (b *ReplyScript) Detached() *ReplyScript {
	return b.On("AT+CGATT?", "\r\n+CGATT: 0\r\n\r\nOK\r\n")
}

func (b *ReplyScript) Clock() *ReplyScript {
	return b.On("AT+CCLK?", "\r\n+CCLK: \"24/05/17,10:20:30+08\"\r\n\r\nOK\r\n")
}

// Reset answers the complete reset-and-attach sequence.
func (b *ReplyScript) Reset() *ReplyScript {
	return b.AT().EchoOff(true).Attached().Clock()
}

func (b *ReplyScript) Shut() *ReplyScript {
	return b.On("AT+CIPSHUT", "\r\nSHUT OK\r\n")
}

func (b *ReplyScript) Transparent() *ReplyScript {
	return b.On("AT+CIPMODE=1", "\r\nOK\r\n")
}

func (b *ReplyScript) APN(apn string) *ReplyScript {
	return b.On(fmt.Sprintf(`AT+CSTT="%s"`, apn), "\r\nOK\r\n")
}

func (b *ReplyScript) Bearer() *ReplyScript {
	return b.On("AT+CIICR", "\r\nOK\r\n")
}

func (b *ReplyScript) LocalIP(ip string) *ReplyScript {
	return b.On("AT+CIFSR", "\r\n"+ip+"\r\n")
}

func (b *ReplyScript) Start(host string, port int) *ReplyScript {
	return b.On(fmt.Sprintf(`AT+CIPSTART="TCP","%s","%d"`, host, port), "\r\nOK\r\n\r\nCONNECT\r\n")
}

// TCP answers the complete TCP connect sequence for the harness defaults.
func (b *ReplyScript) TCP() *ReplyScript {
	return b.Shut().Transparent().APN(testAPN).Bearer().LocalIP(testIP).Start(testHost, testPort)
}

func (b *ReplyScript) Build() map[string]string {
	return b.replies
}
