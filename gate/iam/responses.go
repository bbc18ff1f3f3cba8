// Package iam provides the wire-level response envelopes for the STS API
// surface, marshaled as XML in the AWS STS document format.
package iam

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awssts "github.com/aws/aws-sdk-go/service/sts"

	"github.com/reefgate/reefgate/gate/iam/sts"
)

// stsNamespace is the XML namespace of the STS API document format.
const stsNamespace = "https://sts.amazonaws.com/doc/2011-06-15/"

// CommonResponse is embedded in all STS response types to provide RequestId.
type CommonResponse struct {
	ResponseMetadata struct {
		RequestId string `xml:"RequestId"`
	} `xml:"ResponseMetadata"`
}

// SetRequestId sets a unique request ID based on current timestamp.
func (r *CommonResponse) SetRequestId() {
	r.ResponseMetadata.RequestId = fmt.Sprintf("%d", time.Now().UnixNano())
}

// AssumeRoleWithWebIdentityResponse is the response for the
// AssumeRoleWithWebIdentity action.
type AssumeRoleWithWebIdentityResponse struct {
	CommonResponse
	XMLName xml.Name                        `xml:"https://sts.amazonaws.com/doc/2011-06-15/ AssumeRoleWithWebIdentityResponse"`
	Result  AssumeRoleWithWebIdentityResult `xml:"AssumeRoleWithWebIdentityResult"`
}

// AssumeRoleWithWebIdentityResult contains the result of
// AssumeRoleWithWebIdentity.
type AssumeRoleWithWebIdentityResult struct {
	Credentials                 *awssts.Credentials     `xml:"Credentials,omitempty"`
	AssumedRoleUser             *awssts.AssumedRoleUser `xml:"AssumedRoleUser,omitempty"`
	SubjectFromWebIdentityToken string                  `xml:"SubjectFromWebIdentityToken,omitempty"`
	PackedPolicySize            *int64                  `xml:"PackedPolicySize,omitempty"`
}

// AssumeRoleResponse is the response for the AssumeRole action.
type AssumeRoleResponse struct {
	CommonResponse
	XMLName xml.Name         `xml:"https://sts.amazonaws.com/doc/2011-06-15/ AssumeRoleResponse"`
	Result  AssumeRoleResult `xml:"AssumeRoleResult"`
}

// AssumeRoleResult contains the result of AssumeRole.
type AssumeRoleResult struct {
	Credentials      *awssts.Credentials     `xml:"Credentials,omitempty"`
	AssumedRoleUser  *awssts.AssumedRoleUser `xml:"AssumedRoleUser,omitempty"`
	PackedPolicySize *int64                  `xml:"PackedPolicySize,omitempty"`
}

// GetSessionTokenResponse is the response for the GetSessionToken action.
type GetSessionTokenResponse struct {
	CommonResponse
	XMLName xml.Name              `xml:"https://sts.amazonaws.com/doc/2011-06-15/ GetSessionTokenResponse"`
	Result  GetSessionTokenResult `xml:"GetSessionTokenResult"`
}

// GetSessionTokenResult contains the result of GetSessionToken.
type GetSessionTokenResult struct {
	Credentials *awssts.Credentials `xml:"Credentials,omitempty"`
}

// ErrorResponse is the STS error response format.
type ErrorResponse struct {
	XMLName xml.Name `xml:"https://sts.amazonaws.com/doc/2011-06-15/ ErrorResponse"`
	Error   struct {
		Type    string `xml:"Type"`
		Code    string `xml:"Code"`
		Message string `xml:"Message"`
	} `xml:"Error"`
	RequestId string `xml:"RequestId"`
}

// NewErrorResponse builds the error envelope for an STS error code. The
// fault type follows the AWS convention: caller-attributed errors are
// "Sender", server-side errors are "Receiver".
func NewErrorResponse(code sts.STSErrorCode, message string) *ErrorResponse {
	if message == "" {
		message = code.Message()
	}

	response := &ErrorResponse{}
	response.Error.Code = string(code)
	response.Error.Message = message
	if code.IsSenderFault() {
		response.Error.Type = "Sender"
	} else {
		response.Error.Type = "Receiver"
	}
	response.RequestId = fmt.Sprintf("%d", time.Now().UnixNano())
	return response
}

// NewAssumeRoleWithWebIdentityResponse converts the service response into
// its XML envelope.
func NewAssumeRoleWithWebIdentityResponse(response *sts.AssumeRoleResponse) *AssumeRoleWithWebIdentityResponse {
	envelope := &AssumeRoleWithWebIdentityResponse{
		Result: AssumeRoleWithWebIdentityResult{
			Credentials:                 convertCredentials(response.Credentials),
			AssumedRoleUser:             convertAssumedRoleUser(response.AssumedRoleUser),
			SubjectFromWebIdentityToken: response.SubjectFromWebIdentityToken,
			PackedPolicySize:            response.PackedPolicySize,
		},
	}
	envelope.SetRequestId()
	return envelope
}

// NewAssumeRoleResponse converts the service response into its XML envelope.
func NewAssumeRoleResponse(response *sts.AssumeRoleResponse) *AssumeRoleResponse {
	envelope := &AssumeRoleResponse{
		Result: AssumeRoleResult{
			Credentials:      convertCredentials(response.Credentials),
			AssumedRoleUser:  convertAssumedRoleUser(response.AssumedRoleUser),
			PackedPolicySize: response.PackedPolicySize,
		},
	}
	envelope.SetRequestId()
	return envelope
}

// NewGetSessionTokenResponse converts the service response into its XML
// envelope.
func NewGetSessionTokenResponse(response *sts.GetSessionTokenResponse) *GetSessionTokenResponse {
	envelope := &GetSessionTokenResponse{
		Result: GetSessionTokenResult{
			Credentials: convertCredentials(response.Credentials),
		},
	}
	envelope.SetRequestId()
	return envelope
}

func convertCredentials(credentials *sts.Credentials) *awssts.Credentials {
	if credentials == nil {
		return nil
	}
	return &awssts.Credentials{
		AccessKeyId:     aws.String(credentials.AccessKeyId),
		SecretAccessKey: aws.String(credentials.SecretAccessKey),
		SessionToken:    aws.String(credentials.SessionToken),
		Expiration:      aws.Time(credentials.Expiration),
	}
}

func convertAssumedRoleUser(user *sts.AssumedRoleUser) *awssts.AssumedRoleUser {
	if user == nil {
		return nil
	}
	return &awssts.AssumedRoleUser{
		AssumedRoleId: aws.String(user.AssumedRoleId),
		Arn:           aws.String(user.Arn),
	}
}
