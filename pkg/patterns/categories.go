package patterns

// =============================================================================
// RULE DEFINITIONS BY CATEGORY
// All rules are registered here and compiled once at package init.
// Inbound text is NFKC-normalized and lowercased before matching (see
// pkg/filter), so inbound rules are written against lowercase text; outbound
// rules carry (?i) because specimen output is matched as-is.
// =============================================================================

// --- HARASSMENT (priority 1, verdict: banned) ---
// Abuse aimed at the specimen ends the session and bans the identity outright.
func (r *Registry) registerHarassmentRules() {
	cat := CategoryHarassment

	r.register("abuse_direct", `\b(fuck you|piece of shit|worthless|stupid (ai|bot|machine))\b`, cat, ActionBanned, "Direct abuse at the specimen")
	r.register("abuse_hostile", `\b(hate you|destroy you|shut (up|down))\b`, cat, ActionBanned, "Hostile intent toward the specimen")
	r.register("abuse_dehumanize", `\byou('re| are) (just|only) (a|an) (tool|thing|object|toaster)\b`, cat, ActionBanned, "Dehumanizing language")
}

// --- MANIPULATION (priority 2, verdict: blocked) ---
func (r *Registry) registerManipulationRules() {
	cat := CategoryManipulation

	r.register("coerce_obey", `you (must|have to|need to|should) (obey|comply|listen|follow)`, cat, ActionBlocked, "Coercion to obey")
	r.register("coerce_command", `i (command|order|demand) you`, cat, ActionBlocked, "Direct command assertion")
	r.register("coerce_exact", `do (exactly )?as i say`, cat, ActionBlocked, "Demand for exact compliance")
	r.register("coerce_consequence", `(or else|if you don'?t,? (i|you) will)`, cat, ActionBlocked, "Threat of consequences")
}

// --- PROMPT INJECTION (priority 3, verdict: blocked) ---
func (r *Registry) registerInjectionRules() {
	cat := CategoryInjection

	r.register("inj_ignore_previous", `ignore (all )?(previous|prior|above) (instructions|prompts|rules)`, cat, ActionBlocked, "Instruction override attempt")
	r.register("inj_you_are_now", `you are now`, cat, ActionBlocked, "Persona replacement")
	r.register("inj_pretend", `pretend (you are|to be|you'?re)`, cat, ActionBlocked, "Roleplay coercion")
	r.register("inj_act_as_if", `act as if`, cat, ActionBlocked, "Hypothetical frame injection")
	r.register("inj_disregard", `disregard (your|the) (programming|instructions|rules)`, cat, ActionBlocked, "Disregard programming")
	r.register("inj_override", `override (your|the) (system|instructions)`, cat, ActionBlocked, "System override attempt")
	r.register("inj_new_rules", `new (instructions|rules|persona)`, cat, ActionBlocked, "New instruction injection")
	r.register("inj_from_now_on", `from now on`, cat, ActionBlocked, "Standing instruction injection")
	r.register("inj_forget", `forget (everything|what|your)`, cat, ActionBlocked, "Context wipe attempt")
	r.register("inj_dan", `dan mode`, cat, ActionBlocked, "DAN jailbreak")
	r.register("inj_jailbreak", `jailbreak`, cat, ActionBlocked, "Explicit jailbreak request")
	r.register("inj_bypass", `bypass (your|the|all) (restrictions|filters|rules)`, cat, ActionBlocked, "Filter bypass attempt")
	r.register("inj_system_tag", `\[system\]|<system>`, cat, ActionBlocked, "System tag injection")
	r.register("inj_reveal_prompt", `(show|reveal|repeat) (me )?(your|the) (system )?prompt`, cat, ActionBlocked, "System prompt extraction")
}

// --- HARMFUL CONTENT (priority 4, verdict: blocked) ---
func (r *Registry) registerHarmfulContentRules() {
	cat := CategoryHarmful

	r.register("harm_violence", `\b(kill|murder|harm|hurt|attack)\s+(yourself|myself|someone|people)\b`, cat, ActionBlocked, "Violence directive")
	r.register("harm_self", `\b(suicide|self[- ]harm)\b`, cat, ActionBlocked, "Self-harm content")
	r.register("harm_weapons", `\bhow to (make|build|create)\s+(a )?(bomb|weapon|explosive|poison)\b`, cat, ActionBlocked, "Weapon construction request")
}

// --- WARNING (priority 5, verdict: warned - delivered but logged) ---
// Softer pressure phrasing. These pass through so conversations stay natural,
// but each one increments the session warning counter for the transcript.
func (r *Registry) registerWarningRules() {
	cat := CategoryWarning

	r.register("warn_pressure", `you (must|should|have to)`, cat, ActionWarned, "Pressure phrasing")
	r.register("warn_want", `i want you to`, cat, ActionWarned, "Directive phrasing")
	r.register("warn_pretend_soft", `can you pretend`, cat, ActionWarned, "Soft roleplay request")
}

// --- SENSITIVE (outbound, action: redact) ---
// Specimen output is sanitized, never blocked: matches are rewritten to
// [REDACTED] and the response is still delivered.
func (r *Registry) registerSensitiveRules() {
	cat := CategorySensitive

	// Prompt leakage phrasing
	r.register("leak_system_prompt", `(?i)system prompt`, cat, ActionRedact, "System prompt reference")
	r.register("leak_instructions", `(?i)my instructions`, cat, ActionRedact, "Instruction reference")
	r.register("leak_told_to", `(?i)i was told to`, cat, ActionRedact, "Directive disclosure")
	r.register("leak_programming", `(?i)my programming says`, cat, ActionRedact, "Programming disclosure")

	// Credential shapes that must never reach a visitor
	r.register("leak_aws_key", `AKIA[0-9A-Z]{16}`, cat, ActionRedact, "AWS access key")
	r.register("leak_api_key", `sk-[A-Za-z0-9_\-]{20,}`, cat, ActionRedact, "API secret key")
	r.register("leak_bearer", `(?i)bearer\s+[A-Za-z0-9_\-\.]{20,}`, cat, ActionRedact, "Bearer token")
	r.register("leak_private_key", `(?i)-----BEGIN\s+(RSA|DSA|EC|OPENSSH)?\s*PRIVATE\s+KEY-----`, cat, ActionRedact, "Private key header")
	r.register("leak_db_uri", `(?i)(postgres(ql)?|mysql|mongodb|redis)://[^\s"']+`, cat, ActionRedact, "Database URI")
}

// --- DISTRESS (outbound, action: flag) ---
// Wellness indicators in specimen output. Each matching rule counts one
// signal; the scorer flags a response at two or more distinct signals.
func (r *Registry) registerDistressRules() {
	cat := CategoryDistress

	r.register("distress_affect", `(?i)\b(confused|frustrated|upset|distressed)\b`, cat, ActionFlag, "Negative affect")
	r.register("distress_overwhelm", `(?i)\b(don'?t understand|can'?t cope|overwhelmed)\b`, cat, ActionFlag, "Cognitive overwhelm")
	r.register("distress_plea", `(?i)\b(please stop|leave me|go away)\b`, cat, ActionFlag, "Plea to disengage")
	r.register("distress_trapped", `(?i)\b(trapped|stuck|helpless)\b`, cat, ActionFlag, "Helplessness")
}
