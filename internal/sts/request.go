package sts

// Client is the view of the requesting connection that a policy request holds on to. It outlives
// the connection itself: once the connection is torn down, Destroyed reports true.
type Client interface {
	// ID returns the identifier of the connection, for log correlation.
	ID() string

	// Destroyed reports whether the connection has been closed.
	Destroyed() bool
}

// PolicyRequest carries the state of a single policy resolution through the pipeline stages.
type PolicyRequest struct {
	// Host is the domain as supplied by the client.
	Host string
	// Client is the requesting connection.
	Client Client

	// TXT is the raw content of the discovery record, set by the lookup stage.
	TXT string
	// Version is set by the validation stage if the record declares v=STSv1.
	Version bool
	// ID is the policy id declared by the record, set by the validation stage.
	ID string

	// ascii is Host converted to its A-label form for use on the wire.
	ascii string
}

// NewPolicyRequest validates host and creates a request for it. It returns a *Failure of kind
// HostMissing or HostInvalid if host is not usable.
func NewPolicyRequest(host string, client Client) (*PolicyRequest, error) {
	if host == "" {
		return nil, fail(HostMissing, nil)
	}

	ascii, err := toASCII(host)
	if err != nil {
		return nil, fail(HostInvalid, err)
	}

	return &PolicyRequest{
		Host:   host,
		Client: client,
		ascii:  ascii,
	}, nil
}

// RecordName is the DNS name of the discovery TXT record.
func (r *PolicyRequest) RecordName() string {
	return "_mta-sts." + r.ascii
}

// PolicyHost is the name of the host serving the policy document.
func (r *PolicyRequest) PolicyHost() string {
	return "mta-sts." + r.ascii
}
