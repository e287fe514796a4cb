package publish

// Element locators for the studio upload dialog. The dialog markup changes
// without notice; every selector the browser session relies on lives here.
const (
	uploadIconSelector      = `#upload-icon`
	fileInputSelector       = `ytcp-uploads-file-picker input[type="file"]`
	uploadProgressSelector  = `ytcp-video-upload-progress[uploading]`
	titleTextboxSelector    = `#title-textarea #textbox`
	descTextboxSelector     = `#description-textarea #textbox`
	notForKidsSelector      = `tp-yt-paper-radio-button[name="VIDEO_MADE_FOR_KIDS_NOT_MFK"]`
	forKidsSelector         = `tp-yt-paper-radio-button[name="VIDEO_MADE_FOR_KIDS_MFK"]`
	showMoreSelector        = `#toggle-button`
	tagsInputSelector       = `#tags-container #text-input`
	playlistTriggerSelector = `ytcp-video-metadata-playlists ytcp-dropdown-trigger`
	playlistItemXPath       = `//ytcp-checkbox-group//span[normalize-space(text())=%q]`
	playlistDoneSelector    = `ytcp-playlist-dialog .done-button`
	thumbnailInputSelector  = `#file-loader`
	nextButtonSelector      = `#next-button`
	visibilityRadioFormat   = `tp-yt-paper-radio-button[name="%s"]`
	scheduleExpandSelector  = `#second-container-expand-button`
	datePickerSelector      = `#datepicker-trigger ytcp-dropdown-trigger`
	dateInputSelector       = `ytcp-date-picker tp-yt-paper-input input`
	timeInputSelector       = `#time-of-day-container input`
	doneButtonSelector      = `#done-button`
	closeButtonSelector     = `ytcp-video-share-dialog #close-button`

	scheduleDateLayout = "Jan 2, 2006"
	scheduleTimeLayout = "3:04 PM"
)
