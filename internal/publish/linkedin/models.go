package linkedin

// Request and response shapes for the ugcPosts share endpoint.

type sharePost struct {
	Author          string          `json:"author"`
	LifecycleState  string          `json:"lifecycleState"`
	SpecificContent specificContent `json:"specificContent"`
	Visibility      visibility      `json:"visibility"`
}

type specificContent struct {
	ShareContent shareContent `json:"com.linkedin.ugc.ShareContent"`
}

type shareContent struct {
	ShareCommentary    commentary `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
}

type commentary struct {
	Text string `json:"text"`
}

type visibility struct {
	MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

type shareResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Message        string `json:"message"`
	ServiceErrCode int    `json:"serviceErrorCode"`
	Status         int    `json:"status"`
}
