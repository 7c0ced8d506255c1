// Package notify sends webhook notifications when the sync cycle starts
// failing and when it recovers. Targets are Slack, Microsoft Teams or a
// generic HTTP endpoint; URLs come from environment variables so secrets stay
// out of config.yaml.
package notify
