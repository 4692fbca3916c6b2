package fingerprint

import "regexp"

// nonRepairableRule maps an error pattern to a classification code. A
// matching error points at the environment, not at anything the plumber
// could patch, so the fingerprint is parked permanently.
type nonRepairableRule struct {
	pattern *regexp.Regexp
	code    string
	reason  string
}

var nonRepairableRules = []nonRepairableRule{
	{
		regexp.MustCompile(`(?i)\b429\b|rate.?limit|too many requests`),
		"rate_limited",
		"external API rate limiting; retrying later is the only fix",
	},
	{
		regexp.MustCompile(`(?i)\b50[0-4]\b.*(server|gateway|unavailable)|internal server error|service unavailable|bad gateway`),
		"external_5xx",
		"upstream server error outside our control",
	},
	{
		regexp.MustCompile(`(?i)no space left on device|disk.?full|enospc`),
		"disk_full",
		"disk exhaustion requires operator intervention",
	},
	{
		regexp.MustCompile(`(?i)permission denied|eacces|operation not permitted`),
		"permission_denied",
		"filesystem permissions require operator intervention",
	},
	{
		regexp.MustCompile(`(?i)connection refused|connection reset|network.*(unreachable|timeout)|timed out connecting|name or service not known`),
		"network_error",
		"network connectivity issue outside the code",
	},
	{
		regexp.MustCompile(`(?i)out of memory|memoryerror|cannot allocate memory|oom.?kill`),
		"out_of_memory",
		"memory exhaustion requires resource changes",
	},
	{
		regexp.MustCompile(`(?i)certificate verify failed|ssl.?error|tls.*(handshake|certificate)|x509`),
		"tls_error",
		"TLS/certificate problem in the environment",
	},
	{
		regexp.MustCompile(`(?i)sigkill|signal 9|killed by signal`),
		"killed",
		"process killed externally, likely by the OS or a supervisor",
	},
}

// ClassifyNonRepairable matches the error text against the rule table.
// Returns the code, an explanation, and whether any rule matched.
func ClassifyNonRepairable(errText string) (code, reason string, ok bool) {
	for _, rule := range nonRepairableRules {
		if rule.pattern.MatchString(errText) {
			return rule.code, rule.reason, true
		}
	}
	return "", "", false
}
