package domain

// Rejection is one address a provider refused, with the classified reason.
// Permanent rejections drive token invalidation; transient ones are left for
// the next externally-triggered dispatch attempt.
type Rejection struct {
	Token     string `json:"token" dynamodbav:"token"`
	Reason    string `json:"reason" dynamodbav:"reason"`
	Permanent bool   `json:"permanent" dynamodbav:"permanent"`
}

// DispatchResult is the per-provider outcome of one send call.
type DispatchResult struct {
	Provider   Channel     `json:"provider" dynamodbav:"provider"`
	Accepted   int         `json:"accepted" dynamodbav:"accepted"`
	Rejected   int         `json:"rejected" dynamodbav:"rejected"`
	Rejections []Rejection `json:"rejections,omitempty" dynamodbav:"rejections,omitempty"`
	// Receipt is the provider's raw response summary, kept for audit logging.
	Receipt string `json:"receipt,omitempty" dynamodbav:"receipt,omitempty"`
}

// ProviderReport is the persisted form of a DispatchResult on the
// notification row's delivery_details.
type ProviderReport struct {
	Provider   Channel     `json:"provider" dynamodbav:"provider"`
	Accepted   int         `json:"accepted" dynamodbav:"accepted"`
	Rejected   int         `json:"rejected" dynamodbav:"rejected"`
	Rejections []Rejection `json:"rejections,omitempty" dynamodbav:"rejections,omitempty"`
	Receipt    string      `json:"receipt,omitempty" dynamodbav:"receipt,omitempty"`
	Error      string      `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// PermanentRejections filters the result down to addresses that will never
// succeed again.
func (r *DispatchResult) PermanentRejections() []Rejection {
	var out []Rejection
	for _, rej := range r.Rejections {
		if rej.Permanent {
			out = append(out, rej)
		}
	}
	return out
}
