// Package a2s implements the Steam A2S_INFO server query over UDP.
package a2s

// Extra data flags of an A2S_INFO response.
const (
	edfGameID   = 0x01
	edfSteamID  = 0x10
	edfKeywords = 0x20
	edfSourceTV = 0x40
	edfPort     = 0x80
)

// ServerInfo is a decoded A2S_INFO response.
//
// Keywords is nil when the EDF keywords bit was not set.
type ServerInfo struct {
	Protocol    byte
	Name        string
	Map         string
	Folder      string
	Game        string
	AppID       uint16
	Players     byte
	MaxPlayers  byte
	Bots        byte
	ServerType  byte
	Environment byte
	Visibility  byte
	VAC         byte
	Version     string
	EDF         byte
	GamePort    uint16
	SteamID     uint64
	SourceTV    struct {
		Port uint16
		Name string
	}
	Keywords *string
	GameID   uint64
}
