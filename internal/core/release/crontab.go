package release

import "bytes"

// RenderCrontab substitutes every project directory placeholder in a crontab
// template with the absolute release path.
//
// Example:
//
//	RenderCrontab([]byte("* * * * * cd {{ project_dir }} && ./tick"), "/webapps/app/releases/1.2.0")
//	// "* * * * * cd /webapps/app/releases/1.2.0 && ./tick"
func RenderCrontab(template []byte, projectDir string) []byte {
	out := bytes.ReplaceAll(template, []byte(CrontabPlaceholder), []byte(projectDir))
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}
