//go:build darwin

package permissions

/*
#cgo CFLAGS: -x objective-c -fmodules
#cgo LDFLAGS: -framework AVFoundation -framework ApplicationServices

#import <AVFoundation/AVFoundation.h>
#import <ApplicationServices/ApplicationServices.h>

int check_microphone_permission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

int check_accessibility_permission() {
    Boolean isAccessibilityEnabled = AXIsProcessTrusted();
    return isAccessibilityEnabled ? 1 : 0;
}
*/
import "C"

import (
	"os/exec"
)

var settingsURLs = map[string]string{
	Microphone:    "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone",
	Accessibility: "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility",
}

func platformProbe() probe {
	return probe{
		microphone: func() PermissionStatus {
			return PermissionStatus(C.check_microphone_permission())
		},
		accessibility: func() PermissionStatus {
			if C.check_accessibility_permission() == 1 {
				return PermissionAuthorized
			}
			return PermissionDenied
		},
		openSettings: func(permission string) error {
			return exec.Command("open", settingsURLs[permission]).Run()
		},
	}
}
