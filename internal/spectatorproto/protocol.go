// Package spectatorproto defines the JSON messages exchanged with the world
// feed over its websocket.
package spectatorproto

import "encoding/json"

// Version is the spectator protocol version.
const Version = "0.1"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeSubscribe  = "SUBSCRIBE"
	TypeCamera     = "CAMERA"
	TypeSpectate   = "SPECTATE"
	TypeWelcome    = "WELCOME"
	TypeAuth       = "AUTH_PENDING"
	TypeTick       = "TICK"
	TypeVoxels     = "CHUNK_VOXELS"
	TypeVoxelPatch = "CHUNK_VOXEL_PATCH"
	TypeVoxelEvict = "CHUNK_VOXELS_EVICT"
	TypeError      = "ERROR"
)

// Chunk voxel encodings.
const (
	EncodingPAL16 = "PAL16_U16LE_YZX"
	EncodingRLE   = "RLE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server. First message on the connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	ChunkRadius     int    `json:"chunk_radius"`
}

// Client -> Server. Re-centres voxel streaming, optionally around a subject.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ChunkRadius     int    `json:"chunk_radius"`
	FocusID         string `json:"focus_id,omitempty"`
}

// Client -> Server. Moves the observer. Fire and forget.
type CameraMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [3]float64 `json:"pos"`
	Yaw             float64    `json:"yaw"`
	Pitch           float64    `json:"pitch"`
}

// Client -> Server. Attaches the observer to a subject's view; an empty
// TargetID detaches.
type SpectateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TargetID        string `json:"target_id"`
}

type WorldParams struct {
	ChunkSize [3]int `json:"chunk_size"`
	Height    int    `json:"height"`
}

// Server -> Client. The session is established once this arrives.
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ObserverID      string      `json:"observer_id"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
	SolidBlocks     []string    `json:"solid_blocks"`
}

// Server -> Client. Out-of-band login must complete before WELCOME.
type AuthPendingMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	VerificationURI string `json:"verification_uri"`
	UserCode        string `json:"user_code"`
	Message         string `json:"message,omitempty"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Self            *AgentState  `json:"self,omitempty"`
	Agents          []AgentState `json:"agents"`
}

type AgentState struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Pos   [3]float64 `json:"pos"`
	Yaw   float64    `json:"yaw"`
	Pitch float64    `json:"pitch"`
	Vel   [3]float64 `json:"vel"`
}

// Server -> Client. Full voxel data for a chunk (16x16xheight).
// Encoding "PAL16_U16LE_YZX" means:
// - Decode base64 to bytes, interpret as little-endian uint16 palette ids
// - Iteration order: for y in 0..height-1, for z in 0..15, for x in 0..15 (x fastest)
// Encoding "RLE" carries the same ids as base64 uvarint (value, run) pairs.
type ChunkVoxelsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

type ChunkVoxelPatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	CX              int              `json:"cx"`
	CZ              int              `json:"cz"`
	Cells           []VoxelPatchCell `json:"cells"`
}

// VoxelPatchCell coordinates are chunk-local.
type VoxelPatchCell struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block uint16 `json:"block"`
}

type ChunkVoxelsEvictMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewHello(name string, chunkRadius int) HelloMsg {
	return HelloMsg{Type: TypeHello, ProtocolVersion: Version, Name: name, ChunkRadius: chunkRadius}
}

func NewCamera(pos [3]float64, yaw, pitch float64) CameraMsg {
	return CameraMsg{Type: TypeCamera, ProtocolVersion: Version, Pos: pos, Yaw: yaw, Pitch: pitch}
}

func NewSpectate(targetID string) SpectateMsg {
	return SpectateMsg{Type: TypeSpectate, ProtocolVersion: Version, TargetID: targetID}
}

func NewSubscribe(chunkRadius int, focusID string) SubscribeMsg {
	return SubscribeMsg{Type: TypeSubscribe, ProtocolVersion: Version, ChunkRadius: chunkRadius, FocusID: focusID}
}
