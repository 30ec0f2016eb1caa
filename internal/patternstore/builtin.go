package patternstore

import "github.com/wardenci/warden/internal/model"

// builtinPatterns is the shipped pattern set. Grounded on the source
// engine's loadErrorPatterns (failure_analysis.go), which hardcodes a
// similar table of ErrorPatternRule values for connection/build/test/
// dependency/security failures; ported here to the Pattern shape and
// extended with the two patterns the end-to-end scenarios in spec §8 name
// explicitly (docker_permission_denied, python_module_not_found).
func builtinPatterns() []model.Pattern {
	return []model.Pattern{
		{
			ID:             "docker_permission_denied",
			Name:           "Docker daemon permission denied",
			Category:       "permission",
			Regexes:        []string{`(?i)permission denied while trying to connect to the Docker daemon socket`},
			Keywords:       []string{"docker", "permission", "denied"},
			BaseConfidence: 0.95,
			SuccessRate:    0.8,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "python_module_not_found",
			Name:           "Python ModuleNotFoundError",
			Category:       "dependency",
			Regexes:        []string{`ModuleNotFoundError: No module named '(?P<module>[^']+)'`},
			Keywords:       []string{"ModuleNotFoundError", "module"},
			BaseConfidence: 0.9,
			SuccessRate:    0.8,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "connection_timeout",
			Name:           "Connection timeout",
			Category:       "network",
			Regexes:        []string{`(?i)(connection|dial).*(timed out|timeout)`},
			Keywords:       []string{"timeout", "connection"},
			BaseConfidence: 0.75,
			SuccessRate:    0.6,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "go_build_failure",
			Name:           "Go build failure",
			Category:       "build",
			Regexes:        []string{`(?m)^#.*\n.*\.go:\d+:\d+: `, `go build failed`},
			Keywords:       []string{"go", "build", "undefined"},
			BaseConfidence: 0.7,
			SuccessRate:    0.55,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "npm_install_failure",
			Name:           "npm install failure",
			Category:       "dependency",
			Regexes:        []string{`(?i)npm ERR!.*(ENOENT|E404|ERESOLVE)`},
			Keywords:       []string{"npm", "ERR"},
			BaseConfidence: 0.7,
			SuccessRate:    0.6,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "test_timeout",
			Name:           "Test suite timeout",
			Category:       "timeout",
			Regexes:        []string{`(?i)test.*(timed out|exceeded.*timeout)`},
			Keywords:       []string{"test", "timeout"},
			BaseConfidence: 0.65,
			SuccessRate:    0.5,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "service_unavailable",
			Name:           "Dependent service unavailable",
			Category:       "network",
			Regexes:        []string{`(?i)(503 Service Unavailable|connection refused)`},
			Keywords:       []string{"unavailable", "refused"},
			BaseConfidence: 0.6,
			SuccessRate:    0.45,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "docker_build_failure",
			Name:           "Docker build failure",
			Category:       "build",
			Regexes:        []string{`(?i)failed to build.*docker|COPY failed`},
			Keywords:       []string{"docker", "build"},
			BaseConfidence: 0.65,
			SuccessRate:    0.5,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "memory_error",
			Name:           "Out of memory",
			Category:       "resource",
			Regexes:        []string{`(?i)(out of memory|OOMKilled|cannot allocate memory)`},
			Keywords:       []string{"memory", "killed"},
			BaseConfidence: 0.7,
			SuccessRate:    0.4,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "security_vulnerability",
			Name:           "Known vulnerability detected",
			Category:       "security",
			Regexes:        []string{`(?i)(known vulnerability|CVE-\d{4}-\d+)`},
			Keywords:       []string{"vulnerability", "CVE"},
			BaseConfidence: 0.6,
			SuccessRate:    0.5,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "invalid_configuration",
			Name:           "Invalid configuration",
			Category:       "config",
			Regexes:        []string{`(?i)(invalid configuration|failed to parse config)`},
			Keywords:       []string{"config", "invalid"},
			BaseConfidence: 0.55,
			SuccessRate:    0.4,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
		{
			ID:             "config_file_not_found",
			Name:           "Configuration file not found",
			Category:       "config",
			Regexes:        []string{`(?i)config(uration)? file not found`},
			Keywords:       []string{"config", "not found"},
			BaseConfidence: 0.6,
			SuccessRate:    0.45,
			Enabled:        true,
			Source:         model.SourceBuiltin,
		},
	}
}
