// Package sts resolves the MTA-STS policy of a domain: it looks up the "_mta-sts" TXT record,
// validates it, and fetches the policy document from the domain's well-known policy host.
//
// Resolution runs as a sequence of stages sharing a PolicyRequest. The first failing stage ends
// the resolution with a *Failure, whose Kind is the message reported to the client.
package sts
