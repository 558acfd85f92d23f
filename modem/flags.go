package modem

// flags is the set of response latches. The receive dispatcher sets them and
// whichever sequencer step or session check waits on one consumes it.
type flags uint16

const (
	// AT text family
	flagOK flags = 1 << iota
	flagError
	flagSMSReady
	flagAttached
	flagShutOK
	flagIP
	flagConnect
	flagConnectFail

	// MQTT family
	flagConnAck
	flagPubAck
	flagSubAck
	flagPingResp
	flagPublish
	flagClosed

	flagsAT   = flagOK | flagError | flagSMSReady | flagAttached | flagShutOK | flagIP | flagConnect | flagConnectFail
	flagsMQTT = flagConnAck | flagPubAck | flagSubAck | flagPingResp | flagPublish | flagClosed
)

func (f *flags) set(mask flags) {
	*f |= mask
}

func (f flags) has(mask flags) bool {
	return f&mask != 0
}

// take reports whether any bit of mask was set and clears all of them.
func (f *flags) take(mask flags) bool {
	set := *f&mask != 0
	*f &^= mask
	return set
}

func (f *flags) clear(mask flags) {
	*f &^= mask
}
