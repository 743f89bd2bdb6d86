package tsnlat

// exp-cfg.go implements experiment overlays: named sets of parameter
// assignments that rewrite selected fields of a topology description before
// it is built, so what-if variants of a network run without editing the
// document itself.

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// An ExpParameter struct describes one overlay assignment.  It specifies
//   - ParamObj identifies the kind of thing being configured: Node, Port,
//     Edge, or Stream
//   - Attribute identifies the objects of that kind the assignment applies
//     to.  May be "*" for a wild-card, may be "name%%xxyy" where "xxyy" is
//     the object's name, or a comma-separated list of "attrb%%value" pairs
//     all of which must match
//   - Param names the field being assigned, Value its string-encoded value
type ExpParameter struct {
	// Type of thing being configured
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attribute identifier for this parameter
	Attribute string `json:"attribute" yaml:"attribute"`

	// field being assigned, e.g. "linkSpeed", "gclOpen", "priority"
	Param string `json:"param" yaml:"param"`

	// string-encoded value associated with type
	Value string `json:"value" yaml:"value"`
}

// CreateExpParameter is a constructor.  Completely fills in the struct with
// the [ExpParameter] attributes.
func CreateExpParameter(paramObj, attribute, param, value string) *ExpParameter {
	exptr := &ExpParameter{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value}

	return exptr
}

// Eq reports whether two parameters are identical in every field.
func (exptr *ExpParameter) Eq(other *ExpParameter) bool {
	return exptr.ParamObj == other.ParamObj && exptr.Attribute == other.Attribute &&
		exptr.Param == other.Param && exptr.Value == other.Value
}

// An ExpCfg structure holds all of the ExpParameters for a named experiment
type ExpCfg struct {
	// Name is an identifier for a group of [ExpParameter]s.  No particular
	// interpretation of this string is used, except as a referencing label
	Name string `json:"expname" yaml:"expname"`

	// Parameters is a list of all the [ExpParameter] objects applied to a
	// topology description for an experiment
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// CreateExpCfg is a constructor.  Saves the offered Name and initializes
// the slice of ExpParameters.
func CreateExpCfg(name string) *ExpCfg {
	expcfg := &ExpCfg{Name: name, Parameters: make([]ExpParameter, 0)}

	return expcfg
}

// AddParameter accepts the four values in an ExpParameter, creates one, and
// adds to the ExpCfg's list.  Returns an error if the parameters are not
// validated.
func (expcfg *ExpCfg) AddParameter(paramObj, attribute, param, value string) error {
	err := ValidateParameter(paramObj, attribute, param)
	if err != nil {
		return err
	}

	expcfg.Parameters = append(expcfg.Parameters, *CreateExpParameter(paramObj, attribute, param, value))
	return nil
}

// WriteToFile stores the ExpCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of
// this name.
func (expcfg *ExpCfg) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, expcfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, bytes, 0644)
}

// ReadExpCfg deserializes a byte slice holding a representation of an
// ExpCfg struct.  If the input argument of dict (those bytes) is empty, the
// file whose name is given is read to acquire them.  A deserialized
// representation is returned, or an error if one is generated from a file
// read or the deserialization.
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpCfg{}
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

// ExpParamObjs, ExpAttributes, and ExpParams hold descriptions of the kinds
// of objects an overlay can initialize, for each the attributes that can be
// tested to determine whether an object receives the assignment, and the
// fields assignable on each kind.
var ExpParamObjs []string
var ExpAttributes map[string][]string
var ExpParams map[string][]string

// GetExpParamDesc returns ExpParamObjs, ExpAttributes, and ExpParams after
// ensuring that they have been built.
func GetExpParamDesc() ([]string, map[string][]string, map[string][]string) {
	if ExpParamObjs == nil {
		ExpParamObjs = []string{"Node", "Port", "Edge", "Stream"}
		ExpAttributes = make(map[string][]string)
		ExpAttributes["Node"] = []string{"syncDomain", "*"}
		ExpAttributes["Port"] = []string{"node", "gcl", "framePreemption", "*"}
		ExpAttributes["Edge"] = []string{"node", "port", "*"}
		ExpAttributes["Stream"] = []string{"sender", "receiver", "priority", "*"}
		ExpParams = make(map[string][]string)
		ExpParams["Node"] = []string{"processingDelay", "processingJitter", "syncDomain", "syncJitter"}
		ExpParams["Port"] = []string{"framePreemption", "expressPriorities", "gcl", "gclCycle", "gclOpen", "gclOffset", "gclPriorities"}
		ExpParams["Edge"] = []string{"linkSpeed", "maxFrameSize", "propagationDelay", "transmissionJitter"}
		ExpParams["Stream"] = []string{"cycleTime", "offset", "transmissionWindow", "frameSize", "priority"}
	}

	return ExpParamObjs, ExpAttributes, ExpParams
}

// ValidateParameter returns an error if the paramObj, attribute, and param
// values don't make sense taken together within an ExpParameter.
func ValidateParameter(paramObj, attribute, param string) error {
	GetExpParamDesc()

	if !slices.Contains(ExpParamObjs, paramObj) {
		return fmt.Errorf("parameter paramObj %s is not recognized", paramObj)
	}

	// analyze the attribute by splitting it by comma
	attrbList := strings.Split(attribute, ",")

	for _, attrb := range attrbList {
		// if name is present it is the only acceptable attribute in the
		// comma-separated list
		if strings.HasPrefix(attrb, "name%%") {
			if len(attrbList) != 1 {
				return fmt.Errorf("name attribute %s for paramObj %s is included with more attributes", attrb, paramObj)
			}
			if paramObj == "Edge" {
				return fmt.Errorf("paramObj Edge carries no name to match %s against", attrb)
			}

			// otherwise OK
			return nil
		}

		// if "*" is present it is the only acceptable attribute in the
		// comma-separated list
		if attrb == "*" {
			if len(attrbList) != 1 {
				return fmt.Errorf("attribute * for paramObj %s is included with more attributes", paramObj)
			}

			// otherwise OK
			return nil
		}

		// otherwise check the legitimacy of the individual attribute.
		// Whole string is invalidated if one component is invalid.
		attrbName, _, paired := strings.Cut(attrb, "%%")
		if !paired {
			return fmt.Errorf("attribute %s for paramObj %s lacks a %%%% separated value", attrb, paramObj)
		}
		if !slices.Contains(ExpAttributes[paramObj], attrbName) {
			return fmt.Errorf("attribute %s is not recognized for paramObj %s", attrbName, paramObj)
		}
	}

	// comma-separated attribute is OK, make sure the type of param is
	// consistent with the paramObj
	if !slices.Contains(ExpParams[paramObj], param) {
		return fmt.Errorf("parameter %s is not recognized for paramObj %s", param, paramObj)
	}

	// it's all good
	return nil
}

// A valueStruct type holds the different types a value might have,
// typically only one of these is used, and which one is known by context
type valueStruct struct {
	intValue    int64
	floatValue  float64
	stringValue string
	boolValue   bool
}

// stringToValueStruct takes a string and determines whether it is an
// integer, floating point, boolean, or plain string value.
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{}

	ivalue, ierr := strconv.ParseInt(v, 10, 64)
	if ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		return vs
	}

	fvalue, ferr := strconv.ParseFloat(v, 64)
	if ferr == nil {
		vs.floatValue = fvalue
		return vs
	}

	if v == "true" || v == "True" {
		vs.boolValue = true
		return vs
	}
	if v == "false" || v == "False" {
		return vs
	}

	vs.stringValue = v
	return vs
}

// paramObj is implemented by every description object an overlay can touch.
type paramObj interface {
	matchParam(attrbName, attrbValue string) bool
	setParam(param string, vs valueStruct) error
	paramObjName() string
}

// nodeParam adapts a NodeDesc to the paramObj interface.
type nodeParam struct {
	node *NodeDesc
}

func (npm *nodeParam) paramObjName() string { return npm.node.Name }

func (npm *nodeParam) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return npm.node.Name == attrbValue
	case "syncDomain":
		return npm.node.SyncDomain == attrbValue
	}
	return false
}

func (npm *nodeParam) setParam(param string, vs valueStruct) error {
	switch param {
	case "processingDelay":
		npm.node.ProcessingDelay = nsPtr(vs.intValue)
	case "processingJitter":
		npm.node.ProcessingJitter = nsPtr(vs.intValue)
	case "syncJitter":
		npm.node.SyncJitter = nsPtr(vs.intValue)
	case "syncDomain":
		npm.node.SyncDomain = vs.stringValue
	default:
		return fmt.Errorf("node %s cannot set parameter %s", npm.node.Name, param)
	}
	return nil
}

// portParam adapts a PortDesc, together with its owning node, to the
// paramObj interface.  A port's name attribute is its node-qualified key.
type portParam struct {
	node *NodeDesc
	port *PortDesc
}

func (ppm *portParam) paramObjName() string { return portKey(ppm.node.Name, ppm.port.Name) }

func (ppm *portParam) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return portKey(ppm.node.Name, ppm.port.Name) == attrbValue
	case "node":
		return ppm.node.Name == attrbValue
	case "gcl":
		return strconv.FormatBool(ppm.port.Gcl) == attrbValue
	case "framePreemption":
		return strconv.FormatBool(ppm.port.FramePreemption) == attrbValue
	}
	return false
}

func (ppm *portParam) setParam(param string, vs valueStruct) error {
	switch param {
	case "framePreemption":
		ppm.port.FramePreemption = vs.boolValue
	case "gcl":
		ppm.port.Gcl = vs.boolValue
	case "gclCycle":
		ppm.port.GclCycle = vs.intValue
	case "gclOpen":
		ppm.port.GclOpen = vs.intValue
	case "gclOffset":
		ppm.port.GclOffset = nsPtr(vs.intValue)
	case "expressPriorities", "gclPriorities":
		prios, err := parsePrioList(vs)
		if err != nil {
			return fmt.Errorf("port %s parameter %s: %w", ppm.paramObjName(), param, err)
		}
		if param == "expressPriorities" {
			ppm.port.ExpressPriorities = prios
		} else {
			ppm.port.GclPriorities = prios
		}
	default:
		return fmt.Errorf("port %s cannot set parameter %s", ppm.paramObjName(), param)
	}
	return nil
}

// parsePrioList recovers a priority list from an overlay value: either a
// single integer or a comma-separated list of them.
func parsePrioList(vs valueStruct) ([]int, error) {
	if len(vs.stringValue) == 0 {
		return []int{int(vs.intValue)}, nil
	}

	parts := strings.Split(vs.stringValue, ",")
	prios := make([]int, 0, len(parts))
	for _, part := range parts {
		p, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("priority list element %q is not an integer", part)
		}
		prios = append(prios, p)
	}
	return prios, nil
}

// edgeParam adapts an EdgeDesc to the paramObj interface.
type edgeParam struct {
	edge *EdgeDesc
}

func (epm *edgeParam) paramObjName() string {
	return portKey(epm.edge.Port1[0], epm.edge.Port1[1]) + "::" + portKey(epm.edge.Port2[0], epm.edge.Port2[1])
}

func (epm *edgeParam) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "node":
		return epm.edge.Port1[0] == attrbValue || epm.edge.Port2[0] == attrbValue
	case "port":
		return portKey(epm.edge.Port1[0], epm.edge.Port1[1]) == attrbValue ||
			portKey(epm.edge.Port2[0], epm.edge.Port2[1]) == attrbValue
	}
	return false
}

func (epm *edgeParam) setParam(param string, vs valueStruct) error {
	switch param {
	case "linkSpeed":
		epm.edge.LinkSpeed = vs.intValue
	case "maxFrameSize":
		epm.edge.MaxFrameSize = vs.intValue
	case "propagationDelay":
		epm.edge.PropagationDelay = vs.intValue
	case "transmissionJitter":
		epm.edge.TransmissionJitter = vs.intValue
	default:
		return fmt.Errorf("edge %s cannot set parameter %s", epm.paramObjName(), param)
	}
	return nil
}

// streamParam adapts a StreamDesc to the paramObj interface.
type streamParam struct {
	stream *StreamDesc
}

func (spm *streamParam) paramObjName() string { return spm.stream.Name }

func (spm *streamParam) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return spm.stream.Name == attrbValue
	case "sender":
		return spm.stream.Sender == attrbValue
	case "receiver":
		return spm.stream.Receiver == attrbValue
	case "priority":
		return strconv.Itoa(spm.stream.Priority) == attrbValue
	}
	return false
}

func (spm *streamParam) setParam(param string, vs valueStruct) error {
	switch param {
	case "cycleTime":
		spm.stream.CycleTime = vs.intValue
	case "offset":
		spm.stream.Offset = vs.intValue
	case "transmissionWindow":
		spm.stream.TransmissionWindow = vs.intValue
	case "frameSize":
		spm.stream.FrameSize = vs.intValue
	case "priority":
		spm.stream.Priority = int(vs.intValue)
	default:
		return fmt.Errorf("stream %s cannot set parameter %s", spm.stream.Name, param)
	}
	return nil
}

// reorderExpParams is used to put the ExpParameter parameters in an order
// such that the earlier elements in the order have broader range of
// attributes than later ones that apply to the same configuration element.
// This is the same idea as choosing the routing rule with the smallest
// subnet range when multiple rules apply to the same address.
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	// partition the list into three sublists: wildcard (wc), single (sg),
	// and named (nm).  The wildcard elements always appear before any
	// others, and the named elements always appear after all the others.
	wc := []ExpParameter{}
	sg := []ExpParameter{}
	nm := []ExpParameter{}

	for _, param := range pL {
		switch {
		case param.Attribute == "*":
			wc = append(wc, param)
		case strings.HasPrefix(param.Attribute, "name%%"):
			nm = append(nm, param)
		default:
			sg = append(sg, param)
		}
	}

	// within each partition bring identical elements together so the
	// duplicate sweep below can drop them
	byKey := func(lst []ExpParameter) func(i, j int) bool {
		return func(i, j int) bool {
			if lst[i].ParamObj != lst[j].ParamObj {
				return lst[i].ParamObj < lst[j].ParamObj
			}
			if lst[i].Attribute != lst[j].Attribute {
				return lst[i].Attribute < lst[j].Attribute
			}
			if lst[i].Param != lst[j].Param {
				return lst[i].Param < lst[j].Param
			}
			return lst[i].Value < lst[j].Value
		}
	}
	sort.Slice(wc, byKey(wc))
	sort.Slice(sg, byKey(sg))
	sort.Slice(nm, byKey(nm))

	// pull them together with wc first, followed by sg, and finally nm
	wc = append(wc, sg...)
	wc = append(wc, nm...)

	// get rid of duplicates
	for idx := len(wc) - 1; idx > 0; idx-- {
		if wc[idx].Eq(&wc[idx-1]) {
			wc = append(wc[:idx], wc[(idx+1):]...)
		}
	}

	return wc
}

// ApplyExpCfg rewrites a topology description in place according to the
// overlay: every parameter is validated, the list is ordered most general
// first, and each assignment lands on every object whose attributes match.
// The description is then rebuilt by the caller as usual.
func ApplyExpCfg(expCfg *ExpCfg, td *TopoDesc) error {
	GetExpParamDesc()

	errs := make([]error, 0)
	for idx := range expCfg.Parameters {
		param := &expCfg.Parameters[idx]
		if err := ValidateParameter(param.ParamObj, param.Attribute, param.Param); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return ReportErrs(errs)
	}

	ordered := reorderExpParams(expCfg.Parameters)

	// adapter lists point into the description so assignments stick
	nodeObjs := make([]paramObj, 0, len(td.Nodes))
	portObjs := make([]paramObj, 0)
	for nidx := range td.Nodes {
		nodeObjs = append(nodeObjs, &nodeParam{node: &td.Nodes[nidx]})
		for pidx := range td.Nodes[nidx].Ports {
			portObjs = append(portObjs, &portParam{node: &td.Nodes[nidx], port: &td.Nodes[nidx].Ports[pidx]})
		}
	}
	edgeObjs := make([]paramObj, 0, len(td.Edges))
	for eidx := range td.Edges {
		edgeObjs = append(edgeObjs, &edgeParam{edge: &td.Edges[eidx]})
	}
	streamObjs := make([]paramObj, 0, len(td.Streams))
	for sidx := range td.Streams {
		streamObjs = append(streamObjs, &streamParam{stream: &td.Streams[sidx]})
	}

	// go through the ordered list of assignments, more general before more
	// specific, so specific settings overwrite broad ones
	for idx := range ordered {
		param := &ordered[idx]

		var testList []paramObj
		switch param.ParamObj {
		case "Node":
			testList = nodeObjs
		case "Port":
			testList = portObjs
		case "Edge":
			testList = edgeObjs
		case "Stream":
			testList = streamObjs
		}

		for _, testObj := range testList {
			matched := true
			for _, attrb := range strings.Split(param.Attribute, ",") {
				// wildcard overrides everything else in the list
				if attrb == "*" {
					break
				}

				attrbName, attrbValue, _ := strings.Cut(attrb, "%%")
				if !testObj.matchParam(attrbName, attrbValue) {
					matched = false
					break
				}
			}

			if matched {
				if err := testObj.setParam(param.Param, stringToValueStruct(param.Value)); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	return ReportErrs(errs)
}
