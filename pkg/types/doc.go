// Package types defines the alert payload shared by every alertrelay
// component. An Alert is the decoded JSON object describing one triggered
// alert; transports only read from it when rendering templates.
package types
