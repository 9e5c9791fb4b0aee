package detect

import (
	"time"

	"github.com/dlclark/regexp2"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// matchTimeout bounds a single pattern evaluation
const matchTimeout = 250 * time.Millisecond

// componentRule recognizes one component type in free text
type componentRule struct {
	name       string
	typ        threatmodel.ComponentType
	patterns   []*regexp2.Regexp
	indicators []string
}

// Weights of pattern and indicator hits in a detection's confidence.
const (
	patternWeight   = 0.7
	indicatorWeight = 0.3
)

func mustCompile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.IgnoreCase)
	re.MatchTimeout = matchTimeout
	return re
}

func rule(name string, typ threatmodel.ComponentType, indicators []string, patterns ...string) componentRule {
	r := componentRule{name: name, typ: typ, indicators: indicators}
	for _, p := range patterns {
		r.patterns = append(r.patterns, mustCompile(p))
	}
	return r
}

// componentRules is evaluated in order; detected components keep this order.
var componentRules = []componentRule{
	rule("Frontend", threatmodel.TypeFrontend,
		[]string{"browser", "client", "page", "view", "render", "form"},
		`\b(front[\s-]?end|ui|user\s*interface|web\s*interface)\b`,
		`\b(client[\s-]side|web\s*app(lication)?|spa|single[\s-]page\s*app(lication)?|mobile\s*app)\b`,
		`\b(react(js)?|angular(js)?|vue(js)?|svelte|next\.?js)\b`,
	),
	rule("API Gateway", threatmodel.TypeAPIGateway,
		[]string{"route", "endpoint", "proxy", "forward", "throttle", "rate limit"},
		`\b(api\s*gateway|gateway\s*service)\b`,
		`\b(api\s*management|api\s*proxy|kong|apigee)\b`,
		`\breverse\s*proxy\b`,
	),
	rule("Backend", threatmodel.TypeBackend,
		[]string{"business logic", "service", "handler", "process", "endpoint"},
		// "MySQL backend" names a database, not an application tier
		`(?<!\b(my\s*sql|postgres(ql)?|mongo\s*db|database|db|sql|storage|data)\s+)\bback[\s-]?end\b(?!\s+(database|db|storage))`,
		`\b(application|app|api|web)\s+server\b`,
		`\b(micro[\s-]?services?|rest(ful)?\s+api|graphql\s+api|node\.?js|express|django|flask|spring(\s*boot)?|rails|fastapi)\b`,
	),
	rule("Database", threatmodel.TypeDatabase,
		[]string{"store", "query", "record", "table", "schema", "persist", "retrieve"},
		`\b(sql\s*server|my\s*sql|postgres(ql)?|mongo\s*db|mariadb|database|db)\b`,
		`\b(data\s*store|persistence\s*layer)\b`,
		`\b(nosql|cassandra|oracle\s*db|dynamo\s*db|cosmos\s*db)\b`,
	),
	rule("Authentication Service", threatmodel.TypeAuthService,
		[]string{"authenticate", "authorize", "token", "credential", "password", "permission", "role", "session"},
		`\b(auth\w*\s*(service|server)|identity\s*provider|idp)\b`,
		`\b(oauth\s*2?|openid(\s*connect)?|authentication|log[\s-]?in|sign[\s-]?in|sign[\s-]?on)\b`,
		`\b(sso|saml|identity\s*management|keycloak|auth0|okta|cognito)\b`,
	),
	rule("Storage", threatmodel.TypeStorage,
		[]string{"blob", "container", "file", "upload", "download", "bucket"},
		`\b(blob\s*storage|object\s*storage|file\s*storage|storage\s*account)\b`,
		`\b(azure\s*(blob|files|storage)|s3(\s*bucket)?|gcs|google\s*cloud\s*storage)\b`,
		`\b(file\s*uploads?|document\s*store|nfs)\b`,
	),
	rule("Cache", threatmodel.TypeCache,
		[]string{"cache", "temporary", "quick access", "performance", "ttl"},
		`\b(redis|memcached?|cache\s*service)\b`,
		`\b(in[\s-]memory\s*(cache|store)|caching\s*layer)\b`,
		`\b(distributed\s*cache|cache\s*store|session\s*cache)\b`,
	),
	rule("Load Balancer", threatmodel.TypeLoadBalancer,
		[]string{"traffic", "distribute", "health check", "upstream"},
		`\bload[\s-]?balanc(er|ing)\b`,
		`\b(haproxy|elb|alb|nlb)\b`,
	),
	rule("CDN", threatmodel.TypeCDN,
		[]string{"edge", "static", "asset"},
		`\b(cdn|content\s*delivery\s*network)\b`,
		`\b(cloudfront|akamai|fastly|cloudflare)\b`,
	),
	rule("Message Queue", threatmodel.TypeMessageQueue,
		[]string{"publish", "subscribe", "consumer", "producer", "event", "topic"},
		`\b(message\s*(queue|broker|bus)|event\s*bus|pub[\s/-]?sub)\b`,
		`\b(kafka|rabbit\s*mq|sqs|sns|nats|activemq)\b`,
	),
}

// Exposure and authentication hints.
var (
	internetFacing = mustCompile(
		`(?<!\bnot\s+(be\s+)?)\b(exposed\s+to\s+(the\s+)?(public\s+)?internet|internet[\s-]facing|public(ly)?\s+(accessible|exposed|facing)|on\s+the\s+(public\s+)?internet|public\s+website)\b`)
	internalOnly = mustCompile(
		`\b(internal[\s-]only|intranet|not\s+(be\s+)?exposed\s+to\s+(the\s+)?internet|private\s+network\s+only)\b`)
	passwordAuth = mustCompile(
		`\b(password|login\s+form|username\s+and\s+password|credentials?)\b`)
	mfaAuth = mustCompile(
		`\b(mfa|2fa|multi[\s-]factor|two[\s-]factor|totp)\b`)
)

// matches reports whether re matches s. A pattern that times out counts as no
// match.
func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}
