package version

import "fmt"

// Replaced at build time with -ldflags "-X bab_miner/version.GitHash=...".
var (
	Version = "0.6"
	GitHash = "devsbXXX"
	BuildTS = "2026-10-19T00:00:00Z"
	Model   = "BaB"
	Agent   = "bab_miner/" + Version
	Branch  = "main"
)

type VersionConfig struct {
	Version string `json:"Version"`
	GitHash string `json:"GitHash"`
	BuildTS string `json:"BuildTS"`
	Model   string `json:"Model"`
	Agent   string `json:"Agent"`
	Branch  string `json:"Branch"`
}

func GetVersionConfig() VersionConfig {
	return VersionConfig{
		Version: Version,
		GitHash: GitHash,
		BuildTS: BuildTS,
		Model:   Model,
		Agent:   Agent,
		Branch:  Branch,
	}
}

func (v VersionConfig) String() string {
	return fmt.Sprintf("%s %s (%s@%s, built %s)", v.Agent, v.Model, v.Branch, v.GitHash, v.BuildTS)
}
