// Package nodeop builds the container definition that runs a notebook or script as a
// pipeline node through the bootstrapper.
package nodeop

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

const (
	workDirName      = "jupyter-work-dir/"
	pythonDirName    = "python3/"
	volumeName       = "workspace"
	volumeMountRoot  = "/opt/app-root/src/"
	defaultOrg       = "elyra-ai"
	defaultBranch    = "master"
	bootstrapperName = "bootstrapper"
)

// Config describes one pipeline node.
type Config struct {
	Name     string
	Image    string
	Notebook string

	CosEndpoint            string
	CosBucket              string
	CosDirectory           string
	CosDependenciesArchive string

	Inputs  []string
	Outputs []string
	Env     map[string]string

	// RequirementsURL and BootstrapURL default to the files published for
	// $KFP_NOTEBOOK_ORG / $KFP_NOTEBOOK_BRANCH.
	RequirementsURL string
	BootstrapURL    string
	PipConfigURL    string

	// EmptyDirVolumeSize attaches a writable workspace volume of that size, for runtimes
	// that do not allow writing to the image layers.
	EmptyDirVolumeSize string

	// Args replaces the generated command. The image entrypoint is then expected to run
	// the bootstrapper itself.
	Args []string
}

func rawURL(path string) string {
	org := os.Getenv("KFP_NOTEBOOK_ORG")
	if org == "" {
		org = defaultOrg
	}
	branch := os.Getenv("KFP_NOTEBOOK_BRANCH")
	if branch == "" {
		branch = defaultBranch
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/kfp-notebook/%s/%s", org, branch, path)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("You need to provide a name for the operation.")
	}
	if strings.TrimSpace(c.Image) == "" {
		return errors.New("You need to provide an image.")
	}
	if strings.TrimSpace(c.Notebook) == "" {
		return errors.New("You need to provide a notebook.")
	}
	if c.Args != nil {
		return nil
	}
	required := []struct{ value, what string }{
		{c.CosEndpoint, "an object storage endpoint"},
		{c.CosBucket, "an object storage bucket"},
		{c.CosDirectory, "an object storage directory"},
		{c.CosDependenciesArchive, "a dependency archive"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("You need to provide %s.", r.what)
		}
	}
	for _, name := range append(append([]string{}, c.Inputs...), c.Outputs...) {
		if strings.Contains(name, api.Separator) {
			return fmt.Errorf("Illegal character (%s) found in filename '%s'.", api.Separator, name)
		}
	}
	return nil
}

// Build validates cfg and returns the container definition.
func Build(cfg Config) (*api.ContainerOp, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	op := &api.ContainerOp{Name: cfg.Name, Image: cfg.Image}

	if cfg.Args != nil {
		op.Args = cfg.Args
	} else {
		op.Command = []string{"sh", "-c"}
		op.Args = []string{command(cfg)}
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		op.Env = append(op.Env, api.EnvVar{Name: k, Value: cfg.Env[k]})
	}

	if cfg.EmptyDirVolumeSize != "" {
		op.Volumes = []api.Volume{{
			Name:     volumeName,
			EmptyDir: &api.EmptyDirSource{Medium: "", SizeLimit: cfg.EmptyDirVolumeSize},
		}}
		op.VolumeMounts = []api.VolumeMount{{Name: volumeName, MountPath: volumeMountRoot}}
	}
	return op, nil
}

func command(cfg Config) string {
	root := "./"
	if cfg.EmptyDirVolumeSize != "" {
		root = volumeMountRoot
	}
	workDir := root + workDirName

	bootURL := cfg.BootstrapURL
	if bootURL == "" {
		bootURL = rawURL("etc/docker-scripts/" + bootstrapperName)
	}
	reqsURL := cfg.RequirementsURL
	if reqsURL == "" {
		reqsURL = rawURL("etc/requirements-elyra.txt")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "mkdir -p %s && cd %s && ", workDir, workDir)
	fmt.Fprintf(&b, `curl -H "Cache-Control: no-cache" -L %s --output %s && chmod +x %s && `, shellQuote(bootURL), bootstrapperName, bootstrapperName)
	fmt.Fprintf(&b, `curl -H "Cache-Control: no-cache" -L %s --output requirements-elyra.txt && `, shellQuote(reqsURL))

	userLibPath := ""
	if cfg.EmptyDirVolumeSize != "" {
		userLibPath = workDir + pythonDirName
		pipURL := cfg.PipConfigURL
		if pipURL == "" {
			pipURL = rawURL("etc/pip.conf")
		}
		fmt.Fprintf(&b, `mkdir %s && cd %s && curl -H "Cache-Control: no-cache" -L %s --output pip.conf && cd .. && `, pythonDirName, pythonDirName, shellQuote(pipURL))
	}

	b.WriteString("python3 -m pip freeze > requirements-current.txt && ")
	fmt.Fprintf(&b, "./%s --cos-endpoint %s --cos-bucket %s --cos-directory %s --cos-dependencies-archive %s --file %s ",
		bootstrapperName, shellQuote(cfg.CosEndpoint), shellQuote(cfg.CosBucket), shellQuote(cfg.CosDirectory),
		shellQuote(cfg.CosDependenciesArchive), shellQuote(cfg.Notebook))
	if len(cfg.Inputs) > 0 {
		fmt.Fprintf(&b, "--inputs %s ", shellQuote(strings.Join(cfg.Inputs, api.Separator)))
	}
	if len(cfg.Outputs) > 0 {
		fmt.Fprintf(&b, "--outputs %s ", shellQuote(strings.Join(cfg.Outputs, api.Separator)))
	}
	if userLibPath != "" {
		fmt.Fprintf(&b, "--user-volume-path %s ", shellQuote(userLibPath))
	}
	return b.String()
}

// shellQuote makes s a single sh word with no expansion.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
