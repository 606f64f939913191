package patient

import "errors"

var (
	ErrPatientNotFound      = errors.New("patient profile not found")
	ErrPatientAlreadyExists = errors.New("patient profile already exists")
	ErrNoDeviceLinked       = errors.New("patient has no device linked")
	ErrLinkAlreadyExists    = errors.New("link already exists")
	ErrLinkNotFound         = errors.New("link not found")
)
