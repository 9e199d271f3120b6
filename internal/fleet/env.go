package fleet

import "strings"

var passthroughPrefixes = []string{
	"AWS_",
	"QUEUES_",
	"STORAGE_",
	"LOGGING_",
	"LOG_",
	"WORKER_",
	"APP_TO_MANAGER_QUEUE=",
	"MANAGER_TO_APP_QUEUE=",
	"MANAGER_TO_WORKER_QUEUE=",
	"WORKER_TO_MANAGER_QUEUE=",
}

// PassthroughEnv keeps the KEY=VALUE entries a launched process needs to
// reach the same queues and store as its launcher.
func PassthroughEnv(environ []string) []string {
	var out []string
	for _, kv := range environ {
		for _, p := range passthroughPrefixes {
			if strings.HasPrefix(kv, p) {
				out = append(out, kv)
				break
			}
		}
	}
	return out
}
