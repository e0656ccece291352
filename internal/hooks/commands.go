package hooks

import "regexp"

// commandCategory groups a set of regexes under a human-readable label for
// logging and denial messages.
type commandCategory struct {
	name     string
	patterns []*regexp.Regexp
}

func compileCategory(name string, exprs ...string) commandCategory {
	pats := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		pats = append(pats, regexp.MustCompile(e))
	}
	return commandCategory{name: name, patterns: pats}
}

// matchAny reports the name of the first category with a matching pattern,
// or "" if none match.
func matchAny(cats []commandCategory, cmd string) string {
	for _, c := range cats {
		for _, p := range c.patterns {
			if p.MatchString(cmd) {
				return c.name
			}
		}
	}
	return ""
}

// catastrophicCommands is the fixed deny list DangerousCommandAutoBlocker
// checks: commands no approval can make safe.
var catastrophicCommands = []commandCategory{
	compileCategory("destructive root wipe",
		`rm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/(\s|$)`,
		`rm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/\*`,
		`rm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+~(\s|/|$)`,
	),
	compileCategory("disk overwrite",
		`dd\s+if=/dev/(zero|random|urandom)\s+of=/dev/\w+`,
		`mkfs(\.\w+)?\s+/dev/\w+`,
	),
	compileCategory("fork bomb",
		`:\(\)\s*\{\s*:\|\s*:\s*&\s*\}\s*;\s*:`,
	),
}

// dangerousPatterns is the broader HumanApprovalGate table: not
// catastrophic by themselves, but dangerous enough to require a human
// decision unless already approved for the session.
var dangerousPatterns = []commandCategory{
	compileCategory("recursive removal",
		`rm\s+(-\w*r\w*|--recursive)\S*\s`,
		`rm\s+-\w*f\w*\s+-\w*r\w*`,
	),
	compileCategory("filesystem format",
		`\bmkfs\b`,
		`\bfdisk\b`,
		`\bparted\b`,
	),
	compileCategory("pipe remote to shell",
		`curl\s+[^|]*\|\s*(sudo\s+)?(ba|z)?sh\b`,
		`wget\s+[^|]*\|\s*(sudo\s+)?(ba|z)?sh\b`,
	),
	compileCategory("blanket permission or ownership change",
		`chmod\s+(-R\s+)?0*777\b`,
		`chown\s+-R\s+\S+\s+/(\s|$)`,
	),
	compileCategory("write to system config",
		`>\s*/etc/\S+`,
		`>>\s*/etc/\S+`,
	),
	compileCategory("privilege escalation",
		`\bsudo\s+rm\b`,
		`\bsudo\s+su\b`,
		`\bsudo\s+-s\b`,
	),
	compileCategory("data exfiltration",
		`curl\s+.*--upload-file`,
		`nc\s+.*-e\s*/bin/(ba)?sh`,
	),
	compileCategory("reverse shell",
		`bash\s+-i\s+>&\s*/dev/tcp/`,
		`/bin/(ba)?sh\s+-i\s*>&`,
	),
	compileCategory("eval or injection",
		`\beval\s*\(`,
		`\bexec\s*\(.*\$\(`,
	),
	compileCategory("environment dumping",
		`\benv\b\s*\|\s*curl\b`,
		`\bprintenv\b\s*\|\s*nc\b`,
	),
	compileCategory("container escape",
		`docker\s+run\s+.*--privileged`,
		`nsenter\s+.*--target\s+1\b`,
	),
	compileCategory("crypto mining",
		`\bxmrig\b`,
		`stratum\+tcp://`,
	),
	compileCategory("persistence",
		`crontab\s+-`,
		`>>\s*~/\.bashrc`,
		`>>\s*~/\.ssh/authorized_keys`,
	),
	compileCategory("process manipulation",
		`\bkill\s+-9\s+1\b`,
		`\bpkill\s+-9\s+-f\s+\.`,
	),
}

// IsCatastrophic reports the category name matched against the fixed deny
// list, or "" if cmd is not an unconditional catastrophe.
func IsCatastrophic(cmd string) string {
	return matchAny(catastrophicCommands, cmd)
}

// IsDangerous reports the category name matched against the broader
// approval-required table, or "" if cmd needs no human decision.
func IsDangerous(cmd string) string {
	return matchAny(dangerousPatterns, cmd)
}
