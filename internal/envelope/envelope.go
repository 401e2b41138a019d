// Package envelope is the only way execution contexts talk to each other:
// typed {subject, data} units, posted one way into FIFO mailboxes.
package envelope

// Channel names the destination context family of an envelope.
type Channel string

const (
	ChannelScene   Channel = "scene"
	ChannelRender  Channel = "render"
	ChannelPhysics Channel = "physics"
	ChannelEngine  Channel = "engine"
)

// Subject tags the payload type of an envelope within its channel.
type Subject string

// Scene channel: commands the Game context applies to the authoritative store.
const (
	LoadJSON              Subject = "load_json"
	AddEntity             Subject = "add_entity"
	RemoveEntity          Subject = "remove_entity"
	UpdateEntity          Subject = "update_entity"
	UpdateGlobalTransform Subject = "update_global_transform"
	AddMaterial           Subject = "add_material"
	RemoveMaterial        Subject = "remove_material"
	UpdateMaterial        Subject = "update_material"
	AddAccessor           Subject = "add_accessor"
	RemoveAccessor        Subject = "remove_accessor"
	AddImage              Subject = "add_image"
	RemoveImage           Subject = "remove_image"
	AddAnimation          Subject = "add_animation"
	RemoveAnimation       Subject = "remove_animation"
	SetVisuals            Subject = "set_visuals"
	// Sweep drops accessors and images nothing references.
	Sweep Subject = "sweep"
	// Transforms carries simulated poses (physics -> game) and applied poses (game -> engine).
	Transforms Subject = "transforms"
)

// Render channel: configuration plus state relayed by the Game context.
const (
	SetAnimationsPath Subject = "set_animations_path"
	SetDefaultAvatar  Subject = "set_default_avatar"
	SetSkybox         Subject = "set_skybox"
	Start             Subject = "start"
	Stop              Subject = "stop"
	SyncScene         Subject = "sync_scene"
	EntityAdded       Subject = "entity_added"
	EntityRemoved     Subject = "entity_removed"
	EntityUpdated     Subject = "entity_updated"
	MaterialAdded     Subject = "material_added"
	MaterialRemoved   Subject = "material_removed"
	ImageAdded        Subject = "image_added"
	ImageRemoved      Subject = "image_removed"
	AccessorAdded     Subject = "accessor_added"
	AccessorRemoved   Subject = "accessor_removed"
)

// Physics channel. Start and Stop are shared with the render channel.
const (
	SetGravity  Subject = "set_gravity"
	StepOnce    Subject = "step"
	SyncBodies  Subject = "sync_bodies"
	BodyAdded   Subject = "body_added"
	BodyRemoved Subject = "body_removed"
	BodyUpdated Subject = "body_updated"
)

// Engine channel: upward reports to the orchestrator.
const (
	Ready Subject = "ready"
	Error Subject = "error"
)

var subjects = map[Channel][]Subject{
	ChannelScene: {
		LoadJSON, AddEntity, RemoveEntity, UpdateEntity, UpdateGlobalTransform,
		AddMaterial, RemoveMaterial, UpdateMaterial, AddAccessor, RemoveAccessor,
		AddImage, RemoveImage, AddAnimation, RemoveAnimation, SetVisuals, Sweep, Transforms,
	},
	ChannelRender: {
		SetAnimationsPath, SetDefaultAvatar, SetSkybox, Start, Stop, SetVisuals, SyncScene,
		EntityAdded, EntityRemoved, EntityUpdated, MaterialAdded, MaterialRemoved,
		ImageAdded, ImageRemoved, AccessorAdded, AccessorRemoved,
	},
	ChannelPhysics: {
		Start, Stop, SetGravity, StepOnce, SyncBodies, BodyAdded, BodyRemoved, BodyUpdated,
	},
	ChannelEngine: {Ready, Error, Transforms},
}

// Known reports whether subject belongs to the closed set of ch.
func Known(ch Channel, subject Subject) bool {
	for _, s := range subjects[ch] {
		if s == subject {
			return true
		}
	}
	return false
}

// Envelope is one message between contexts. Data is owned by the receiver.
type Envelope struct {
	Channel Channel
	Subject Subject
	Data    any
	// Origin names the sending context, for error reports.
	Origin string
}
