package api

// v0 contains public types shared by the runner and the node builder.

// Separator delimits the entries of the inputs and outputs lists, both in the node definition
// and on the runner command line. File names containing it cannot be staged.
const Separator = ";"

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// SideEffectKind names a best-effort action performed while executing an operation.
type SideEffectKind string

const (
	SideEffectRender SideEffectKind = "render"
	SideEffectUpload SideEffectKind = "upload"
)

// SideEffect records one action an operation performed, whether or not execution succeeded.
type SideEffect struct {
	Kind  SideEffectKind `json:"kind" yaml:"kind"`
	Name  string         `json:"name" yaml:"name"`
	Key   string         `json:"key,omitempty" yaml:"key,omitempty"`
	Error string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Outcome is the result of executing a single pipeline node.
type Outcome struct {
	Status      RunStatus    `json:"status" yaml:"status"`
	Err         error        `json:"-" yaml:"-"`
	SideEffects []SideEffect `json:"side_effects" yaml:"side_effects"`
}

// Failed reports whether the outcome represents a failed execution.
func (o *Outcome) Failed() bool { return o.Status == RunFailed }

// Record appends a side effect to the outcome.
func (o *Outcome) Record(kind SideEffectKind, name, key string, err error) {
	se := SideEffect{Kind: kind, Name: name, Key: key}
	if err != nil {
		se.Error = err.Error()
	}
	o.SideEffects = append(o.SideEffects, se)
}

// Uploaded returns the object keys of successful uploads, in order.
func (o *Outcome) Uploaded() []string {
	var keys []string
	for _, se := range o.SideEffects {
		if se.Kind == SideEffectUpload && se.Error == "" {
			keys = append(keys, se.Key)
		}
	}
	return keys
}

// UIMetadataOutput is a single entry of the orchestration UI metadata document.
type UIMetadataOutput struct {
	Storage string `json:"storage"`
	Source  string `json:"source"`
	Type    string `json:"type"`
}

// ContainerOp describes the container a pipeline node runs in.
type ContainerOp struct {
	Name         string        `json:"name" yaml:"name"`
	Image        string        `json:"image" yaml:"image"`
	Command      []string      `json:"command,omitempty" yaml:"command,omitempty"`
	Args         []string      `json:"args" yaml:"args"`
	Env          []EnvVar      `json:"env,omitempty" yaml:"env,omitempty"`
	Volumes      []Volume      `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	VolumeMounts []VolumeMount `json:"volumeMounts,omitempty" yaml:"volumeMounts,omitempty"`
}

type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

type Volume struct {
	Name     string          `json:"name" yaml:"name"`
	EmptyDir *EmptyDirSource `json:"emptyDir,omitempty" yaml:"emptyDir,omitempty"`
}

type EmptyDirSource struct {
	Medium    string `json:"medium" yaml:"medium"`
	SizeLimit string `json:"sizeLimit" yaml:"sizeLimit"`
}

type VolumeMount struct {
	Name      string `json:"name" yaml:"name"`
	MountPath string `json:"mountPath" yaml:"mountPath"`
}
