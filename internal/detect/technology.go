package detect

import (
	"github.com/dlclark/regexp2"

	"github.com/mark-chris/threatc/internal/threatmodel"
)

// Technology categories.
const (
	CategoryDatabase  = "database"
	CategoryCache     = "cache"
	CategoryWebServer = "web_server"
	CategoryCloud     = "cloud"
	CategoryAuth      = "authentication"
	CategoryFramework = "framework"
	CategoryMessaging = "messaging"
)

type technology struct {
	name     string
	category string
	// typ is the component the technology belongs to; empty for
	// infrastructure that spans components.
	typ          threatmodel.ComponentType
	pattern      *regexp2.Regexp
	implications []string
}

var genericImplications = []string{
	"Ensure proper access controls",
	"Regular security patching required",
}

func tech(name, category string, typ threatmodel.ComponentType, pattern string, implications ...string) technology {
	if len(implications) == 0 {
		implications = genericImplications
	}
	return technology{
		name:         name,
		category:     category,
		typ:          typ,
		pattern:      mustCompile(pattern),
		implications: implications,
	}
}

var technologies = []technology{
	tech("postgresql", CategoryDatabase, threatmodel.TypeDatabase, `\b(postgres(ql)?|psql)\b`,
		"SQL injection vulnerabilities if not properly parameterized",
		"Privilege escalation through weak role configurations",
		"Data exposure through misconfigured connection strings"),
	tech("mysql", CategoryDatabase, threatmodel.TypeDatabase, `\bmy\s*sql\b`,
		"SQL injection vulnerabilities if not properly parameterized",
		"Default accounts and anonymous users left enabled",
		"Unencrypted client connections"),
	tech("mongodb", CategoryDatabase, threatmodel.TypeDatabase, `\bmongo(\s*db)?\b`,
		"NoSQL injection through unsanitized query operators",
		"Unauthenticated instances exposed to the network"),
	tech("elasticsearch", CategoryDatabase, threatmodel.TypeDatabase, `\belastic(search)?\b`,
		"Open indices readable without authentication",
		"Script injection through query DSL"),
	tech("redis", CategoryCache, threatmodel.TypeCache, `\bredis\b`,
		"Data exposure if not properly authenticated",
		"Cache poisoning attacks",
		"DOS through memory exhaustion"),
	tech("memcached", CategoryCache, threatmodel.TypeCache, `\bmemcached?\b`,
		"No built-in authentication on the default protocol",
		"UDP amplification when exposed"),
	tech("nginx", CategoryWebServer, "", `\bnginx\b`,
		"DDoS vulnerabilities if not properly configured",
		"Information disclosure through server headers",
		"Path traversal attacks"),
	tech("apache", CategoryWebServer, "", `\b(apache|httpd)\b`,
		"Information disclosure through server headers",
		"Module misconfiguration"),
	tech("iis", CategoryWebServer, "", `\b(iis|internet\s+information\s+services)\b`),
	tech("aws", CategoryCloud, "", `\b(aws|amazon\s+web\s+services|ec2|rds|s3)\b`,
		"S3 bucket misconfigurations",
		"IAM privilege escalation",
		"CloudFront security misconfigurations"),
	tech("azure", CategoryCloud, "", `\b(azure|microsoft\s+cloud)\b`),
	tech("gcp", CategoryCloud, "", `\b(gcp|google\s+cloud)\b`),
	tech("oauth", CategoryAuth, threatmodel.TypeAuthService, `\b(oauth\s*2?|openid\s+connect|oidc)\b`,
		"Token leakage through insecure storage",
		"CSRF attacks on callback endpoints",
		"Phishing through malicious redirect_uri"),
	tech("jwt", CategoryAuth, threatmodel.TypeAuthService, `\b(jwt|json\s+web\s+tokens?)\b`,
		"Algorithm confusion and unsigned tokens",
		"Long-lived tokens without revocation"),
	tech("saml", CategoryAuth, threatmodel.TypeAuthService, `\bsaml\b`,
		"XML signature wrapping attacks"),
	tech("spring", CategoryFramework, threatmodel.TypeBackend, `\bspring(\s*boot)?\b`),
	tech("django", CategoryFramework, threatmodel.TypeBackend, `\bdjango\b`),
	tech("express", CategoryFramework, threatmodel.TypeBackend, `\b(express(\.?js)?|node\.?js)\b`),
	tech("react", CategoryFramework, threatmodel.TypeFrontend, `\breact(\.?js)?\b`,
		"Cross-site scripting through dangerouslySetInnerHTML",
		"Secrets embedded in client bundles"),
	tech("angular", CategoryFramework, threatmodel.TypeFrontend, `\bangular(js)?\b`),
	tech("vue", CategoryFramework, threatmodel.TypeFrontend, `\bvue(\.?js)?\b`),
	tech("kafka", CategoryMessaging, threatmodel.TypeMessageQueue, `\bkafka\b`,
		"Unauthenticated producers and consumers",
		"Plaintext inter-broker traffic"),
	tech("rabbitmq", CategoryMessaging, threatmodel.TypeMessageQueue, `\brabbit\s*mq\b`),
}
