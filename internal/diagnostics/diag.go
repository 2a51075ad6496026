package diagnostics

import "time"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

const (
	ShaderCompile  = "SHADER.COMPILE"
	ShaderReloaded = "SHADER.RELOADED"
	ShaderRead     = "SHADER.READ"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	At             time.Time      `json:"at"`
}

// Text is the one-line form shown in the preview overlay.
func (d Diagnostic) Text() string {
	if d.Detail == "" {
		return d.Code + ": " + d.Summary
	}
	return d.Code + ": " + d.Summary + ": " + d.Detail
}

// CompileFailed describes a shader that did not compile.
func CompileFailed(path string, err error, placeholder bool) Diagnostic {
	d := Diagnostic{
		Severity: Err,
		Code:     ShaderCompile,
		Summary:  "Shader failed to compile",
		Detail:   err.Error(),
		LikelyCauses: []string{
			"WGSL syntax or type error in the fragment module",
			"missing @fragment entry point",
		},
		SuggestedFixes: []string{"fix the reported error and save the file again"},
		Evidence:       map[string]any{"path": path, "placeholder": placeholder},
		At:             time.Now(),
	}
	if !placeholder {
		d.SuggestedFixes = append(d.SuggestedFixes, "the previous program keeps running until then")
	}
	return d
}

// ReadFailed describes a shader file that could not be read during a reload.
func ReadFailed(path string, err error) Diagnostic {
	return Diagnostic{
		Severity:       Err,
		Code:           ShaderRead,
		Summary:        "Shader file could not be read",
		Detail:         err.Error(),
		LikelyCauses:   []string{"file was removed or renamed", "permissions changed"},
		SuggestedFixes: []string{"restore the file at the watched path"},
		Evidence:       map[string]any{"path": path},
		At:             time.Now(),
	}
}

// Reloaded records a successful recompile.
func Reloaded(path string, programID uint64) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     ShaderReloaded,
		Summary:  "Shader reloaded",
		Evidence: map[string]any{"path": path, "program": programID},
		At:       time.Now(),
	}
}
