package omstasher

import (
	runtimepkg "github.com/drblury/omstasher/internal/runtime"
	configpkg "github.com/drblury/omstasher/internal/runtime/config"
	containerpkg "github.com/drblury/omstasher/internal/runtime/container"
	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	eventspkg "github.com/drblury/omstasher/internal/runtime/events"
	idspkg "github.com/drblury/omstasher/internal/runtime/ids"
	jsoncodec "github.com/drblury/omstasher/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
	metadatapkg "github.com/drblury/omstasher/internal/runtime/metadata"
	thoughtspkg "github.com/drblury/omstasher/internal/thoughts"
)

type (
	ConfigSource   = configpkg.Source
	ConfigPool     = configpkg.Pool
	ConfigLayered  = configpkg.Layered
	ConfigValue    = configpkg.Value
	HTTPConfig     = configpkg.HTTPConfig
	DatabaseConfig = configpkg.DatabaseConfig
	EventsConfig   = configpkg.EventsConfig

	Container       = containerpkg.Container
	ContainerOption = containerpkg.Option
	Services        = containerpkg.Services
	Database        = containerpkg.Database

	EventMessage      = eventspkg.EventMessage
	StateModification = eventspkg.StateModification
	ModificationKind  = eventspkg.ModificationKind
	Broadcaster       = eventspkg.Broadcaster
	BroadcasterOption = eventspkg.Option
	Producer          = eventspkg.Producer
	Consumer          = eventspkg.Consumer
	LagError          = eventspkg.LagError

	ServiceRuntime = runtimepkg.ServiceRuntime
	RunOption      = runtimepkg.RunOption
	Orchestrator   = runtimepkg.Orchestrator
	Branch         = runtimepkg.Branch

	Thought       = thoughtspkg.Thought
	ThoughtSource = thoughtspkg.Source
	Envelope      = thoughtspkg.Envelope
	ThoughtStore  = thoughtspkg.Store
	ThoughtPost   = thoughtspkg.PostRequest

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigurationError = errspkg.ConfigurationError
	SetupError         = errspkg.SetupError
	HandlerError       = errspkg.HandlerError
)

const (
	Creation = eventspkg.Creation
	Update   = eventspkg.Update
	Delete   = eventspkg.Delete

	ObserverOrigin = eventspkg.ObserverOrigin
)

var (
	NewContainer      = containerpkg.New
	WithLogger        = containerpkg.WithLogger
	WithRegisterer    = containerpkg.WithRegisterer
	NewPool           = configpkg.NewPool
	FromEnv           = configpkg.FromEnv
	LoadYAMLFile      = configpkg.LoadYAMLFile
	ValidateConfig    = configpkg.Validate
	NewBroadcaster    = eventspkg.New
	WithCapacity      = eventspkg.WithCapacity
	NewEventMessage   = eventspkg.NewEventMessage
	Created           = eventspkg.Created
	Updated           = eventspkg.Updated
	Deleted           = eventspkg.Deleted
	IsLag             = eventspkg.IsLag
	RunService        = runtimepkg.RunService
	NewOrchestrator   = runtimepkg.NewOrchestrator
	SignalBranch      = runtimepkg.SignalBranch
	NewMetadata       = metadatapkg.New
	NewDefaultLogger  = loggingpkg.NewDefault
	LevelForVerbosity = loggingpkg.LevelForVerbosity
	CreateULID        = idspkg.CreateULID

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrBroadcasterClosed  = eventspkg.ErrBroadcasterClosed
	ErrNoProducers        = eventspkg.ErrNoProducers
	ErrDispatcherStopped  = errspkg.ErrDispatcherStopped
	ErrConfigKeyMissing   = errspkg.ErrConfigKeyMissing
	ErrConfigKeyMalformed = errspkg.ErrConfigKeyMalformed
	ErrContainerClosed    = errspkg.ErrContainerClosed
	ErrHandlerRequired    = errspkg.ErrHandlerRequired
	ErrConsumerRequired   = errspkg.ErrConsumerRequired
	ErrThoughtNotFound    = thoughtspkg.ErrThoughtNotFound
	ErrParentNotFound     = thoughtspkg.ErrParentNotFound
	IsConfigurationError  = errspkg.IsConfiguration
	IsSetupError          = errspkg.IsSetup
)
