package session

// requestQueue holds Control Point commands waiting for the single in-flight
// slot, in arrival order
type requestQueue struct {
	items []*PendingRequest
}

func (q *requestQueue) push(req *PendingRequest) {
	q.items = append(q.items, req)
}

func (q *requestQueue) pop() *PendingRequest {
	if len(q.items) == 0 {
		return nil
	}
	req := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return req
}

// fetchFor returns the queued notification attribute fetch for uid, if any
func (q *requestQueue) fetchFor(uid uint32) *PendingRequest {
	for _, req := range q.items {
		if req.Kind == KindNotificationAttributes && req.UID == uid {
			return req
		}
	}
	return nil
}

// hasFetch reports whether a notification attribute fetch for uid is queued
func (q *requestQueue) hasFetch(uid uint32) bool {
	return q.fetchFor(uid) != nil
}

// hasApp reports whether an app attribute fetch for appID is queued
func (q *requestQueue) hasApp(appID string) bool {
	for _, req := range q.items {
		if req.Kind == KindAppAttributes && req.AppID == appID {
			return true
		}
	}
	return false
}

// removeUID drops every queued command targeting uid and returns them
func (q *requestQueue) removeUID(uid uint32) []*PendingRequest {
	var removed []*PendingRequest
	kept := q.items[:0]
	for _, req := range q.items {
		if req.Kind != KindAppAttributes && req.UID == uid {
			removed = append(removed, req)
			continue
		}
		kept = append(kept, req)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return removed
}

func (q *requestQueue) len() int {
	return len(q.items)
}

func (q *requestQueue) clear() {
	q.items = nil
}
