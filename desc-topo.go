package tsnlat

// desc-topo.go holds the serializable description of a topology to be
// evaluated: nodes that carry ports, edges that join port pairs, and the
// periodic streams crossing them.  Descriptions are the on-disk form; the
// runtime form built from them lives in topo.go.  All duration fields are
// nanoseconds, link speeds are Mbit/s.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default values applied when a topology document omits a field.
const (
	DefaultProcessingDelay  = 1050
	DefaultProcessingJitter = 50
	DefaultSyncJitter       = 30
	DefaultGclCycle         = 1000000
	DefaultGclOpen          = 10000
	DefaultGclOffset        = 1000
	DefaultLinkSpeed        = 1000
	DefaultMaxFrameSize     = 1522
)

// NameSeparator is reserved for derived report row identifiers of the form
// node-direction; node, port, and stream names must not contain it.
const NameSeparator = "-"

// PortDesc describes one port of a node: the frame-preemption setup and the
// gate-control (time-aware shaping) schedule of its egress side.  Slice
// fields treat empty the same as omitted.
type PortDesc struct {
	// name of the port, unique within its node
	Name string `json:"name" yaml:"name" validate:"required"`

	// express frames may preempt in-progress lower priority transmissions when true
	FramePreemption bool `json:"framePreemption,omitempty" yaml:"framePreemption,omitempty"`

	// priorities eligible for preemption bypass, each 0-7
	ExpressPriorities []int `json:"expressPriorities,omitempty" yaml:"expressPriorities,omitempty" validate:"omitempty,dive,gte=0,lte=7"`

	// gate control list (time-aware shaping) active when true
	Gcl bool `json:"gcl,omitempty" yaml:"gcl,omitempty"`

	// length of the repeating gate cycle, 0 means DefaultGclCycle
	GclCycle int64 `json:"gclCycle,omitempty" yaml:"gclCycle,omitempty" validate:"gte=0"`

	// duration the gate stays open within one cycle, 0 means DefaultGclOpen
	GclOpen int64 `json:"gclOpen,omitempty" yaml:"gclOpen,omitempty" validate:"gte=0"`

	// offset of the gate-open instant from cycle start.  An explicit zero
	// differs from the default, hence the pointer
	GclOffset *int64 `json:"gclOffset,omitempty" yaml:"gclOffset,omitempty" validate:"omitempty,gte=0"`

	// priorities admitted during the open window, each 0-7; omitted or
	// empty admits all of 0-7
	GclPriorities []int `json:"gclPriorities,omitempty" yaml:"gclPriorities,omitempty" validate:"omitempty,dive,gte=0,lte=7"`
}

// NodeDesc describes a forwarding or end node.  ProcessingDelay,
// ProcessingJitter, and SyncJitter use pointers because their defaults are
// non-zero and an explicit zero is meaningful.
type NodeDesc struct {
	// name of the node, unique across the topology
	Name string `json:"name" yaml:"name" validate:"required"`

	// fixed time spent forwarding a frame through the node, default DefaultProcessingDelay
	ProcessingDelay *int64 `json:"processingDelay,omitempty" yaml:"processingDelay,omitempty" validate:"omitempty,gte=0"`

	// uncertainty on the processing delay, default DefaultProcessingJitter
	ProcessingJitter *int64 `json:"processingJitter,omitempty" yaml:"processingJitter,omitempty" validate:"omitempty,gte=0"`

	// name of the clock synchronization domain the node belongs to, empty for none
	SyncDomain string `json:"syncDomain,omitempty" yaml:"syncDomain,omitempty"`

	// residual clock uncertainty within the sync domain, default DefaultSyncJitter
	SyncJitter *int64 `json:"syncJitter,omitempty" yaml:"syncJitter,omitempty" validate:"omitempty,gte=0"`

	// ports owned by the node
	Ports []PortDesc `json:"ports,omitempty" yaml:"ports,omitempty" validate:"omitempty,dive"`
}

// EdgeDesc describes an undirected link between two ports.  Port1 and Port2
// are [node name, port name] pairs.
type EdgeDesc struct {
	Port1 [2]string `json:"port1" yaml:"port1,flow"`
	Port2 [2]string `json:"port2" yaml:"port2,flow"`

	// link speed in Mbit/s, 0 means DefaultLinkSpeed
	LinkSpeed int64 `json:"linkSpeed,omitempty" yaml:"linkSpeed,omitempty" validate:"gte=0"`

	// largest frame the link carries, in bytes, 0 means DefaultMaxFrameSize
	MaxFrameSize int64 `json:"maxFrameSize,omitempty" yaml:"maxFrameSize,omitempty" validate:"gte=0"`

	// signal propagation time across the link
	PropagationDelay int64 `json:"propagationDelay,omitempty" yaml:"propagationDelay,omitempty" validate:"gte=0"`

	// residual timing uncertainty of transmissions entering the link
	TransmissionJitter int64 `json:"transmissionJitter,omitempty" yaml:"transmissionJitter,omitempty" validate:"gte=0"`
}

// StreamDesc describes one periodic flow from a sender node to a receiver
// node.  CycleTime and FrameSize have no defaults and must be positive.
// Priority is deliberately not range-checked here: an out-of-range priority
// surfaces per stream during evaluation, not as a document error.
type StreamDesc struct {
	// name of the stream, unique across the topology
	Name string `json:"name" yaml:"name" validate:"required"`

	// period of the stream's transmission cycle
	CycleTime int64 `json:"cycleTime" yaml:"cycleTime" validate:"required,gt=0"`

	// earliest transmission instant within the cycle
	Offset int64 `json:"offset,omitempty" yaml:"offset,omitempty" validate:"gte=0"`

	// addend to the offset bounding the latest transmission instant
	TransmissionWindow int64 `json:"transmissionWindow,omitempty" yaml:"transmissionWindow,omitempty" validate:"gte=0"`

	// payload bytes per frame, excluding wire overhead
	FrameSize int64 `json:"frameSize" yaml:"frameSize" validate:"required,gt=0"`

	// name of the sending node
	Sender string `json:"sender" yaml:"sender" validate:"required"`

	// name of the receiving node
	Receiver string `json:"receiver" yaml:"receiver" validate:"required"`

	// priority class 0-7, highest is 7
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// TopoDesc is the complete serializable description of one topology and its
// stream set, the unit a single evaluation run consumes.
type TopoDesc struct {
	Name    string       `json:"name" yaml:"name" validate:"required"`
	Nodes   []NodeDesc   `json:"nodes" yaml:"nodes" validate:"required,dive"`
	Edges   []EdgeDesc   `json:"edges" yaml:"edges" validate:"omitempty,dive"`
	Streams []StreamDesc `json:"streams" yaml:"streams" validate:"omitempty,dive"`
}

// descValidate checks the declarative constraints on a topology document.
// Cross-reference checks (edge endpoints exist, names are unique and free of
// the reserved separator) happen in BuildTopology where the lookup maps are
// at hand.
var descValidate = validator.New()

// Validate runs the struct-level constraints over the document and folds any
// violation into an InvalidTopology error.
func (td *TopoDesc) Validate() error {
	err := descValidate.Struct(td)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	msgs := make([]string, 0)
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("field %s fails constraint %s", fe.Namespace(), fe.Tag()))
		}
	} else {
		msgs = append(msgs, err.Error())
	}

	return topoError("%s", strings.Join(msgs, ","))
}

// ReadTopoDesc deserializes a slice of bytes into a TopoDesc.  If the input
// arg of bytes is empty, the file whose name is given as an argument is
// read.  Error returned if any part of the process generates the error.
func ReadTopoDesc(topoFileName string, useYAML bool, dict []byte) (*TopoDesc, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, serr := os.Stat(topoFileName)
		if os.IsNotExist(serr) || (serr == nil && fileInfo.IsDir()) {
			return nil, fmt.Errorf("topology %s does not exist or cannot be read", topoFileName)
		}
		dict, err = os.ReadFile(topoFileName)
		if err != nil {
			return nil, err
		}
	}

	example := TopoDesc{}

	// the flag selects whether the bytes carry encoded json or encoded yaml
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// WriteToFile serializes the TopoDesc and writes to the file whose name is
// given as an input argument.  Extension of the file name selects whether
// serialization is to json or to yaml format.
func (td *TopoDesc) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, td)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, bytes, 0644)
}

// marshalByExt serializes v to yaml or to indented json, selected by the
// extension of the output file name.
func marshalByExt(filename string, v any) ([]byte, error) {
	pathExt := path.Ext(filename)

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		return yaml.Marshal(v)
	}

	return json.MarshalIndent(v, "", "\t")
}

// UseYAML reports whether the named file should be treated as yaml rather
// than json, judged by its extension.
func UseYAML(filename string) bool {
	pathExt := path.Ext(filename)

	return pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml"
}

// nsPtr wraps a literal duration so it can be assigned to the optional
// pointer fields of a description.
func nsPtr(v int64) *int64 {
	return &v
}

// valueOr dereferences an optional description field, substituting the
// default when the field was omitted.
func valueOr(v *int64, dflt int64) int64 {
	if v == nil {
		return dflt
	}

	return *v
}

// intOr substitutes a default for an omitted (zero) numeric field whose
// zero value is meaningless.
func intOr(v int64, dflt int64) int64 {
	if v == 0 {
		return dflt
	}

	return v
}
